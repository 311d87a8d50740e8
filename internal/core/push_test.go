package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/blockcast/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_NoVideo(t *testing.T) {
	lib := newTestLibrary(t)
	client := newMockClient()
	path := writeTestRecording(t, t.TempDir(), "loops.json", testRecording(""))

	results, err := Push(context.Background(), lib, client, []string{path}, PushOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "loops", results[0].Info.Title)
	assert.Equal(t, 3, results[0].Info.EventCount)
	assert.Zero(t, client.uploads)
}

func TestPush_UploadsReferencedVideoFirst(t *testing.T) {
	lib := newTestLibrary(t)
	client := newMockClient()
	hash := putVideo(t, lib, []byte("screen"))
	path := writeTestRecording(t, t.TempDir(), "loops.json", testRecording(remote.VideoURL(hash)))

	var phases []string
	results, err := Push(context.Background(), lib, client, []string{path}, PushOptions{Title: "Loops"}, func(phase string, _, _ int) {
		phases = append(phases, phase)
	})
	require.NoError(t, err)
	assert.Equal(t, "Loops", results[0].Info.Title)
	assert.Equal(t, []byte("screen"), client.videos[hash])
	assert.Equal(t, []string{"uploading videos", "publishing recordings"}, phases)
}

func TestPush_SharedVideoUploadedOnce(t *testing.T) {
	lib := newTestLibrary(t)
	client := newMockClient()
	hash := putVideo(t, lib, []byte("screen"))
	dir := t.TempDir()
	a := writeTestRecording(t, dir, "a.json", testRecording(remote.VideoURL(hash)))
	rec := testRecording(remote.VideoURL(hash))
	rec.Duration = 5000
	b := writeTestRecording(t, dir, "b.json", rec)

	results, err := Push(context.Background(), lib, client, []string{a, b}, PushOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, a, results[0].Path)
	assert.Equal(t, b, results[1].Path)
	assert.Equal(t, 1, client.uploads)
	assert.ElementsMatch(t, []string{"a", "b"}, client.published)
}

func TestPush_AttachVideo(t *testing.T) {
	lib := newTestLibrary(t)
	client := newMockClient()
	path := writeTestRecording(t, t.TempDir(), "loops.json", testRecording(""))
	video := filepath.Join(t.TempDir(), "take.webm")
	require.NoError(t, os.WriteFile(video, []byte("take"), 0644))

	results, err := Push(context.Background(), lib, client, []string{path}, PushOptions{VideoPath: video}, nil)
	require.NoError(t, err)
	assert.Equal(t, remote.VideoURL(hashOf([]byte("take"))), results[0].Info.VideoURL)
	assert.Equal(t, []byte("take"), client.videos[hashOf([]byte("take"))])
}

func TestPush_AttachVideoNeedsOneRecording(t *testing.T) {
	lib := newTestLibrary(t)
	dir := t.TempDir()
	a := writeTestRecording(t, dir, "a.json", testRecording(""))
	b := writeTestRecording(t, dir, "b.json", testRecording(""))

	_, err := Push(context.Background(), lib, newMockClient(), []string{a, b}, PushOptions{VideoPath: "x.webm"}, nil)
	assert.ErrorContains(t, err, "exactly one recording")
}

func TestPush_MissingLocalVideo(t *testing.T) {
	lib := newTestLibrary(t)
	client := newMockClient()
	path := writeTestRecording(t, t.TempDir(), "loops.json", testRecording(remote.VideoURL(hashOf([]byte("gone")))))

	_, err := Push(context.Background(), lib, client, []string{path}, PushOptions{}, nil)
	assert.ErrorContains(t, err, "not in the local store")
	assert.Empty(t, client.published)
}

func TestPush_ExternalVideoNotUploaded(t *testing.T) {
	lib := newTestLibrary(t)
	client := newMockClient()
	path := writeTestRecording(t, t.TempDir(), "loops.json", testRecording("https://cdn.example.com/loops.webm"))

	_, err := Push(context.Background(), lib, client, []string{path}, PushOptions{}, nil)
	require.NoError(t, err)
	assert.Zero(t, client.uploads)
}

func TestPush_UploadFailureStopsPublish(t *testing.T) {
	lib := newTestLibrary(t)
	client := newMockClient()
	client.uploadErr = errBoom
	hash := putVideo(t, lib, []byte("screen"))
	path := writeTestRecording(t, t.TempDir(), "loops.json", testRecording(remote.VideoURL(hash)))

	_, err := Push(context.Background(), lib, client, []string{path}, PushOptions{}, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, client.published)
}

func TestPush_PublishError(t *testing.T) {
	lib := newTestLibrary(t)
	client := newMockClient()
	client.publishErr = errBoom
	path := writeTestRecording(t, t.TempDir(), "loops.json", testRecording(""))

	_, err := Push(context.Background(), lib, client, []string{path}, PushOptions{}, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, "loops.json")
}

func TestPush_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := Push(context.Background(), newTestLibrary(t), newMockClient(), []string{path}, PushOptions{}, nil)
	assert.Error(t, err)
}

func TestPush_Nothing(t *testing.T) {
	_, err := Push(context.Background(), newTestLibrary(t), newMockClient(), nil, PushOptions{}, nil)
	assert.Error(t, err)
}
