package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/remote"
	"golang.org/x/sync/errgroup"
)

const maxWorkers = 4

// PushOptions configures a push operation.
type PushOptions struct {
	// Title names every pushed recording; empty uses each file's base name.
	Title string
	// VideoPath attaches a video file to a single pushed recording.
	VideoPath   string
	ContentType string
}

// PushResult is the outcome for one recording file.
type PushResult struct {
	Path string
	Info *models.RecordingInfo
}

// PushProgress is called during push to report progress.
type PushProgress func(phase string, current, total int)

// Push uploads the videos referenced by the recording files, then publishes
// the recordings. Videos go first because the server rejects recordings whose
// library video it does not hold.
func Push(ctx context.Context, lib *Library, client remote.RemoteClient, paths []string, opts PushOptions, progress PushProgress) ([]*PushResult, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no recordings to push")
	}
	if opts.VideoPath != "" && len(paths) != 1 {
		return nil, fmt.Errorf("--video needs exactly one recording, got %d", len(paths))
	}

	recs := make([]*models.Recording, len(paths))
	for i, p := range paths {
		rec, err := ReadRecordingFile(p)
		if err != nil {
			return nil, err
		}
		recs[i] = rec
	}

	if opts.VideoPath != "" {
		url, err := lib.ImportVideo(ctx, opts.VideoPath, opts.ContentType)
		if err != nil {
			return nil, err
		}
		recs[0].VideoURL = url
	}

	hashes, err := referencedVideos(ctx, lib, paths, recs)
	if err != nil {
		return nil, err
	}
	if err := uploadVideos(ctx, lib, client, hashes, progress); err != nil {
		return nil, err
	}

	results := make([]*PushResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for i := range paths {
		g.Go(func() error {
			title := opts.Title
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(paths[i]), filepath.Ext(paths[i]))
			}
			info, err := client.PublishRecording(gctx, title, recs[i])
			if err != nil {
				return fmt.Errorf("publish %s: %w", paths[i], err)
			}
			results[i] = &PushResult{Path: paths[i], Info: info}
			return nil
		})
	}
	progress("publishing recordings", len(paths), len(paths))
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// referencedVideos returns the sorted, deduplicated library video hashes of
// recs. Every one must be present in the local store.
func referencedVideos(ctx context.Context, lib *Library, paths []string, recs []*models.Recording) ([]string, error) {
	seen := make(map[string]bool)
	var hashes []string
	for i, rec := range recs {
		hash, ok := localVideo(rec)
		if !ok || seen[hash] {
			continue
		}
		has, err := lib.Videos.Has(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("check local video %s: %w", hash, err)
		}
		if !has {
			return nil, fmt.Errorf("%s: video %s is not in the local store", paths[i], hash[:12])
		}
		seen[hash] = true
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)
	return hashes, nil
}

// uploadVideos uploads video blobs in parallel with bounded concurrency.
func uploadVideos(ctx context.Context, lib *Library, client remote.RemoteClient, hashes []string, progress PushProgress) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, hash := range hashes {
		progress("uploading videos", i+1, len(hashes))
		g.Go(func() error {
			r, meta, err := lib.Videos.Get(ctx, hash)
			if err != nil {
				return fmt.Errorf("get local video %s: %w", hash, err)
			}
			defer r.Close()

			if err := client.UploadVideo(ctx, hash, r, meta.ContentType); err != nil {
				return fmt.Errorf("upload video %s: %w", hash, err)
			}
			return nil
		})
	}

	return g.Wait()
}
