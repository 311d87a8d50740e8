package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/remote"
	"github.com/kilupskalvis/blockcast/internal/remote/blobstore"
	"github.com/stretchr/testify/require"
)

// mockClient implements remote.RemoteClient in memory.
type mockClient struct {
	mu sync.Mutex

	recordings map[string]*models.Recording
	videos     map[string][]byte
	published  []string // titles, in call order

	uploads    int
	publishErr error
	uploadErr  error
}

func newMockClient() *mockClient {
	return &mockClient{
		recordings: make(map[string]*models.Recording),
		videos:     make(map[string][]byte),
	}
}

func (m *mockClient) Register(context.Context, string, string) error { return nil }

func (m *mockClient) Login(_ context.Context, username, _ string) (*remote.LoginResponse, error) {
	return &remote.LoginResponse{Username: username, Token: "bc_test"}, nil
}

func (m *mockClient) Logout(context.Context) error { return nil }

func (m *mockClient) ListRecordings(context.Context, string) ([]*models.RecordingInfo, error) {
	return nil, nil
}

func (m *mockClient) GetRecording(_ context.Context, id string) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return nil, &remote.RemoteError{Code: "not_found", Message: "recording not found", Status: 404}
	}
	return rec, nil
}

func (m *mockClient) PublishRecording(_ context.Context, title string, rec *models.Recording) (*models.RecordingInfo, error) {
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if hash, ok := remote.VideoHashFromURL(rec.VideoURL); ok {
		if _, ok := m.videos[hash]; !ok {
			return nil, &remote.RemoteError{Code: "missing_video", Message: "video not uploaded", Status: 422}
		}
	}
	id, err := models.GenerateRecordingID("alice", rec)
	if err != nil {
		return nil, err
	}
	m.recordings[id] = rec
	m.published = append(m.published, title)
	return models.NewRecordingInfo(id, title, "alice", rec, testTime), nil
}

func (m *mockClient) DeleteRecording(context.Context, string) error { return nil }

func (m *mockClient) State(context.Context, string, int64) (*remote.PlaybackState, error) {
	return nil, nil
}

func (m *mockClient) UploadVideo(_ context.Context, hash string, r io.Reader, _ string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[hash] = data
	m.uploads++
	return nil
}

func (m *mockClient) DownloadVideo(_ context.Context, hash string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.videos[hash]
	if !ok {
		return nil, "", &remote.RemoteError{Code: "not_found", Message: "video not found", Status: 404}
	}
	return io.NopCloser(bytes.NewReader(data)), "video/webm", nil
}

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	dir := t.TempDir()
	videos, err := blobstore.NewFSStore(filepath.Join(dir, "videos"))
	require.NoError(t, err)
	lib, err := NewLibrary(filepath.Join(dir, "recordings"), videos)
	require.NoError(t, err)
	return lib
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func testRecording(videoURL string) *models.Recording {
	return &models.Recording{
		Events: []models.Event{
			{Timestamp: 1000, Type: models.EventCreate, Data: models.EventData{
				Document:           `<xml><block type="start" id="b1"></block></xml>`,
				HighlightElementID: "b1",
			}},
			{Timestamp: 2000, Type: models.EventCreate, Data: models.EventData{
				Document:           `<xml><block type="start" id="b1"></block><block type="move" id="b2"></block></xml>`,
				HighlightElementID: "b2",
			}},
			{Timestamp: 3500, Type: models.EventDelete, Data: models.EventData{
				Document: `<xml><block type="start" id="b1"></block></xml>`,
			}},
		},
		VideoURL: videoURL,
		Duration: 4000,
	}
}

func writeTestRecording(t *testing.T, dir, name string, rec *models.Recording) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, WriteRecordingFile(path, rec))
	return path
}

func putVideo(t *testing.T, lib *Library, data []byte) string {
	t.Helper()
	hash := hashOf(data)
	require.NoError(t, lib.Videos.Put(context.Background(), hash, bytes.NewReader(data), "video/webm"))
	return hash
}

var errBoom = errors.New("boom")
