package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultContentType is recorded when an upload does not name one.
const DefaultContentType = "video/webm"

// validHash matches a lowercase hex-encoded SHA256 hash (64 characters).
var validHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidHash reports whether hash is a well-formed video address.
func ValidHash(hash string) bool {
	return validHash.MatchString(hash)
}

// HashReader returns the address of the content read from r and its size.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// FSStore implements VideoStore on the local filesystem. Videos live under a
// two-level layout keyed by the first two hash characters, each with a
// sibling .meta file holding its VideoMeta.
type FSStore struct {
	root    string
	maxSize int64
}

// FSOption configures an FSStore.
type FSOption func(*FSStore)

// WithMaxSize rejects uploads larger than n bytes. Zero means unlimited.
func WithMaxSize(n int64) FSOption {
	return func(s *FSStore) { s.maxSize = n }
}

// NewFSStore creates a filesystem-backed video store rooted at the given directory.
func NewFSStore(root string, opts ...FSOption) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create video root: %w", err)
	}
	s := &FSStore{root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Has checks whether a video exists.
func (s *FSStore) Has(_ context.Context, hash string) (bool, error) {
	if !ValidHash(hash) {
		return false, nil
	}
	_, err := os.Stat(s.videoPath(hash))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat video %s: %w", hash, err)
	}
	return true, nil
}

// Get opens a video for reading.
func (s *FSStore) Get(_ context.Context, hash string) (io.ReadCloser, *VideoMeta, error) {
	if !ValidHash(hash) {
		return nil, nil, ErrVideoNotFound
	}
	meta, err := s.readMeta(hash)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrVideoNotFound
		}
		return nil, nil, fmt.Errorf("read video meta %s: %w", hash, err)
	}

	f, err := os.Open(s.videoPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrVideoNotFound
		}
		return nil, nil, fmt.Errorf("open video %s: %w", hash, err)
	}
	return f, meta, nil
}

// Put streams r into a temp file, verifies its hash and renames it into place.
func (s *FSStore) Put(_ context.Context, hash string, r io.Reader, contentType string) error {
	if !ValidHash(hash) {
		return fmt.Errorf("invalid video hash: %q", hash)
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	path := s.videoPath(hash)

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".video-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	discard := func() { os.Remove(tmpPath) }

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		tmp.Close()
		discard()
		return fmt.Errorf("write video data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		discard()
		return fmt.Errorf("close temp file: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		discard()
		return fmt.Errorf("%d byte limit: %w", s.maxSize, ErrTooLarge)
	}

	if got := hex.EncodeToString(hasher.Sum(nil)); got != hash {
		discard()
		return fmt.Errorf("expected %s, got %s: %w", hash, got, ErrHashMismatch)
	}

	// Meta goes first so a visible video always has one.
	meta, err := json.Marshal(&VideoMeta{ContentType: contentType, Size: n})
	if err != nil {
		discard()
		return fmt.Errorf("marshal video meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(hash), meta, 0644); err != nil {
		discard()
		return fmt.Errorf("write video meta: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		discard()
		os.Remove(s.metaPath(hash))
		return fmt.Errorf("rename video: %w", err)
	}
	return nil
}

// Delete removes a video and its metadata file.
func (s *FSStore) Delete(_ context.Context, hash string) error {
	if !ValidHash(hash) {
		return nil
	}
	if err := os.Remove(s.videoPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove video %s: %w", hash, err)
	}
	os.Remove(s.metaPath(hash))
	return nil
}

// ListHashes returns all video hashes by scanning the directory tree.
func (s *FSStore) ListHashes(_ context.Context) ([]string, error) {
	var hashes []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, ".meta") || strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		// root/ab/cd... -> abcd...
		if parts := strings.Split(rel, string(filepath.Separator)); len(parts) == 2 {
			if hash := parts[0] + parts[1]; ValidHash(hash) {
				hashes = append(hashes, hash)
			}
		}
		return nil
	})
	return hashes, err
}

func (s *FSStore) videoPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func (s *FSStore) metaPath(hash string) string {
	return s.videoPath(hash) + ".meta"
}

func (s *FSStore) readMeta(hash string) (*VideoMeta, error) {
	data, err := os.ReadFile(s.metaPath(hash))
	if err != nil {
		return nil, err
	}
	var meta VideoMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return &meta, nil
}
