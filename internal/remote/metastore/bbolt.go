package metastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/remote"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRecordings  = []byte("recordings")
	bucketInfo        = []byte("recording_info")
	bucketAuthorIndex = []byte("author_index") // author:id -> nil
)

// BboltStore implements MetaStore using bbolt.
type BboltStore struct {
	db *bolt.DB
}

// NewBboltStore opens or creates a bbolt database at the given path.
func NewBboltStore(dbPath string) (*BboltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create meta directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open meta database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecordings, bucketInfo, bucketAuthorIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BboltStore{db: db}, nil
}

// Close releases the bbolt database.
func (s *BboltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// HasRecording checks if a recording exists.
func (s *BboltStore) HasRecording(_ context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketInfo).Get([]byte(id)) != nil
		return nil
	})
	return exists, err
}

// GetRecordingInfo retrieves a library entry by ID. Returns ErrNotFound if missing.
func (s *BboltStore) GetRecordingInfo(_ context.Context, id string) (*models.RecordingInfo, error) {
	var info *models.RecordingInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInfo).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		info = &models.RecordingInfo{}
		return json.Unmarshal(data, info)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// GetRecording retrieves a recording by ID. Returns ErrNotFound if missing.
func (s *BboltStore) GetRecording(_ context.Context, id string) (*models.Recording, error) {
	var rec *models.Recording
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecordings).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		rec = &models.Recording{}
		if err := json.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("unmarshal recording: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// InsertRecording atomically stores a recording, its entry and index key.
func (s *BboltStore) InsertRecording(_ context.Context, info *models.RecordingInfo, rec *models.Recording) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		infoBucket := tx.Bucket(bucketInfo)

		// Skip if recording already exists (idempotent)
		if infoBucket.Get([]byte(info.ID)) != nil {
			return nil
		}

		recData, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal recording: %w", err)
		}
		if err := tx.Bucket(bucketRecordings).Put([]byte(info.ID), recData); err != nil {
			return fmt.Errorf("store recording: %w", err)
		}

		infoData, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal recording info: %w", err)
		}
		if err := infoBucket.Put([]byte(info.ID), infoData); err != nil {
			return fmt.Errorf("store recording info: %w", err)
		}

		if err := tx.Bucket(bucketAuthorIndex).Put(authorKey(info.Author, info.ID), nil); err != nil {
			return fmt.Errorf("store author index: %w", err)
		}
		return nil
	})
}

// ListRecordings returns entries newest first, optionally filtered by author.
func (s *BboltStore) ListRecordings(_ context.Context, author string) ([]*models.RecordingInfo, error) {
	var list []*models.RecordingInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		infoBucket := tx.Bucket(bucketInfo)

		if author == "" {
			return infoBucket.ForEach(func(_, v []byte) error {
				var info models.RecordingInfo
				if err := json.Unmarshal(v, &info); err != nil {
					return fmt.Errorf("unmarshal recording info: %w", err)
				}
				list = append(list, &info)
				return nil
			})
		}

		prefix := authorKey(author, "")
		c := tx.Bucket(bucketAuthorIndex).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := k[len(prefix):]
			data := infoBucket.Get(id)
			if data == nil {
				continue
			}
			var info models.RecordingInfo
			if err := json.Unmarshal(data, &info); err != nil {
				return fmt.Errorf("unmarshal recording info: %w", err)
			}
			list = append(list, &info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// DeleteRecording removes a recording. Returns ErrNotFound if missing.
func (s *BboltStore) DeleteRecording(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		infoBucket := tx.Bucket(bucketInfo)
		data := infoBucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var info models.RecordingInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("unmarshal recording info: %w", err)
		}

		if err := infoBucket.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRecordings).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketAuthorIndex).Delete(authorKey(info.Author, id))
	})
}

// GetRecordingCount returns the number of stored recordings.
func (s *BboltStore) GetRecordingCount(_ context.Context) (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketInfo).Stats().KeyN
		return nil
	})
	return count, err
}

// GetAllVideoHashes returns the stored-video hashes referenced by any recording.
func (s *BboltStore) GetAllVideoHashes(_ context.Context) (map[string]bool, error) {
	hashes := make(map[string]bool)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInfo).ForEach(func(_, v []byte) error {
			var info models.RecordingInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("unmarshal recording info: %w", err)
			}
			if hash, ok := remote.VideoHashFromURL(info.VideoURL); ok {
				hashes[hash] = true
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func authorKey(author, id string) []byte {
	return []byte(author + "\x00" + id)
}

