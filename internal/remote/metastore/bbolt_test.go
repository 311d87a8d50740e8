package metastore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BboltStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test-meta.db")
	s, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecording(n int) *models.Recording {
	rec := &models.Recording{Events: []models.Event{}, VideoURL: "placeholder"}
	for i := 0; i < n; i++ {
		rec.Events = append(rec.Events, models.Event{
			Timestamp: int64(i * 1000),
			Type:      models.EventCreate,
			Data:      models.EventData{Document: fmt.Sprintf("<xml><block id=\"b%d\"/></xml>", i)},
		})
	}
	return rec
}

func insertTestRecording(t *testing.T, s *BboltStore, id, author string, createdAt time.Time, videoURL string) {
	t.Helper()
	rec := testRecording(2)
	rec.VideoURL = videoURL
	info := models.NewRecordingInfo(id, "title "+id, author, rec, createdAt)
	require.NoError(t, s.InsertRecording(context.Background(), info, rec))
}

func TestBboltStore_HasRecording(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	has, err := s.HasRecording(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, has)

	insertTestRecording(t, s, "rec1", "alice", time.Now(), "placeholder")

	has, err = s.HasRecording(ctx, "rec1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBboltStore_GetRecording(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetRecording(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetRecordingInfo(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	created := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	insertTestRecording(t, s, "rec1", "alice", created, "placeholder")

	rec, err := s.GetRecording(ctx, "rec1")
	require.NoError(t, err)
	require.Len(t, rec.Events, 2)
	assert.Equal(t, int64(1000), rec.Events[1].Timestamp)
	assert.Equal(t, models.EventCreate, rec.Events[1].Type)
	assert.Equal(t, "<xml><block id=\"b1\"/></xml>", rec.Events[1].Data.Document)

	info, err := s.GetRecordingInfo(ctx, "rec1")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Author)
	assert.Equal(t, "title rec1", info.Title)
	assert.Equal(t, 2, info.EventCount)
	assert.True(t, created.Equal(info.CreatedAt))
}

func TestBboltStore_InsertRecording_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	insertTestRecording(t, s, "rec1", "alice", time.Now(), "placeholder")

	// A second insert with the same ID keeps the original entry
	other := testRecording(5)
	info := models.NewRecordingInfo("rec1", "changed", "bob", other, time.Now())
	require.NoError(t, s.InsertRecording(ctx, info, other))

	got, err := s.GetRecordingInfo(ctx, "rec1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Author)
	assert.Equal(t, 2, got.EventCount)

	count, err := s.GetRecordingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBboltStore_ListRecordings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	insertTestRecording(t, s, "a1", "alice", base, "placeholder")
	insertTestRecording(t, s, "b1", "bob", base.Add(time.Minute), "placeholder")
	insertTestRecording(t, s, "a2", "alice", base.Add(2*time.Minute), "placeholder")

	all, err := s.ListRecordings(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a2", all[0].ID)
	assert.Equal(t, "b1", all[1].ID)
	assert.Equal(t, "a1", all[2].ID)

	alice, err := s.ListRecordings(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "a2", alice[0].ID)
	assert.Equal(t, "a1", alice[1].ID)

	nobody, err := s.ListRecordings(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, nobody)
}

func TestBboltStore_ListRecordings_AuthorPrefixIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	insertTestRecording(t, s, "r1", "al", time.Now(), "placeholder")
	insertTestRecording(t, s, "r2", "alice", time.Now(), "placeholder")

	list, err := s.ListRecordings(ctx, "al")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
}

func TestBboltStore_DeleteRecording(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.ErrorIs(t, s.DeleteRecording(ctx, "nonexistent"), ErrNotFound)

	insertTestRecording(t, s, "rec1", "alice", time.Now(), "placeholder")
	require.NoError(t, s.DeleteRecording(ctx, "rec1"))

	has, err := s.HasRecording(ctx, "rec1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.GetRecording(ctx, "rec1")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListRecordings(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBboltStore_GetAllVideoHashes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hash := "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"
	insertTestRecording(t, s, "r1", "alice", time.Now(), "/api/v1/videos/"+hash)
	insertTestRecording(t, s, "r2", "alice", time.Now(), "https://cdn.example.com/video.webm")
	insertTestRecording(t, s, "r3", "bob", time.Now(), "placeholder")

	hashes, err := s.GetAllVideoHashes(ctx)
	require.NoError(t, err)
	assert.Len(t, hashes, 1)
	assert.True(t, hashes[hash])
}

func TestBboltStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "meta.db")

	s, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	insertTestRecording(t, s, "rec1", "alice", time.Now(), "placeholder")
	require.NoError(t, s.Close())

	s, err = NewBboltStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	has, err := s.HasRecording(ctx, "rec1")
	require.NoError(t, err)
	assert.True(t, has)
}
