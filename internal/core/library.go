// Package core contains the client-side recording operations behind the CLI.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kilupskalvis/blockcast/internal/config"
	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/remote"
	"github.com/kilupskalvis/blockcast/internal/remote/blobstore"
)

const recordingExt = ".json"

// Library is the workspace-local copy of recordings and their videos.
type Library struct {
	dir    string
	Videos blobstore.VideoStore
}

// OpenLibrary opens the recordings and videos directories of a workspace.
func OpenLibrary(cfg *config.Config) (*Library, error) {
	videos, err := blobstore.NewFSStore(cfg.VideosPath())
	if err != nil {
		return nil, fmt.Errorf("open video store: %w", err)
	}
	return NewLibrary(cfg.RecordingsPath(), videos)
}

// NewLibrary creates a Library over dir and videos.
func NewLibrary(dir string, videos blobstore.VideoStore) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create recordings directory: %w", err)
	}
	return &Library{dir: dir, Videos: videos}, nil
}

// Path returns where the recording called name is stored.
func (l *Library) Path(name string) string {
	return filepath.Join(l.dir, name+recordingExt)
}

// Save writes rec under name, replacing any previous version.
func (l *Library) Save(name string, rec *models.Recording) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid recording name: %q", name)
	}
	path := l.Path(name)
	if err := WriteRecordingFile(path, rec); err != nil {
		return "", err
	}
	return path, nil
}

// List returns the names of all local recordings, sorted.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != recordingExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), recordingExt))
	}
	sort.Strings(names)
	return names, nil
}

// ImportVideo copies a video file into the local store and returns the URL a
// recording should reference it by.
func (l *Library) ImportVideo(ctx context.Context, path, contentType string) (string, error) {
	hash, err := hashPath(path)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	if err := l.Videos.Put(ctx, hash, f, contentType); err != nil {
		return "", fmt.Errorf("store video: %w", err)
	}
	return remote.VideoURL(hash), nil
}

// localVideo returns the hash of rec's video when it is served by a library
// server. ok is false for external URLs and recordings without video.
func localVideo(rec *models.Recording) (hash string, ok bool) {
	return remote.VideoHashFromURL(rec.VideoURL)
}

// ReadRecordingFile loads and validates a recording file.
func ReadRecordingFile(path string) (*models.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	rec, err := models.DecodeRecording(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// WriteRecordingFile writes rec to path through a temp file and rename.
func WriteRecordingFile(path string, rec *models.Recording) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-recording-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := models.EncodeRecording(tmp, rec); err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename recording: %w", err)
	}
	return nil
}

func hashPath(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	hash, _, err := blobstore.HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hash video: %w", err)
	}
	return hash, nil
}
