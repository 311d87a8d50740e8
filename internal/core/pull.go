package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/blockcast/internal/remote"
	"golang.org/x/sync/errgroup"
)

// PullResult is the outcome for one recording id.
type PullResult struct {
	ID          string
	Path        string
	VideoPulled bool
}

// FetchProgress is called during pull to report progress.
type FetchProgress func(phase string, current, total int)

// Pull downloads recordings into the local library, along with any library
// video they reference that is not already stored locally.
func Pull(ctx context.Context, lib *Library, client remote.RemoteClient, ids []string, progress FetchProgress) ([]*PullResult, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}

	results := make([]*PullResult, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, id := range ids {
		progress("pulling recordings", i+1, len(ids))
		g.Go(func() error {
			res, err := pullOne(ctx, lib, client, id)
			if err != nil {
				return fmt.Errorf("pull %s: %w", id, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func pullOne(ctx context.Context, lib *Library, client remote.RemoteClient, id string) (*PullResult, error) {
	rec, err := client.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &PullResult{ID: id}
	if hash, ok := localVideo(rec); ok {
		has, err := lib.Videos.Has(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("check local video %s: %w", hash, err)
		}
		if !has {
			if err := downloadVideo(ctx, lib, client, hash); err != nil {
				return nil, err
			}
			res.VideoPulled = true
		}
	}

	// The recording is written last so a local copy never points at a
	// missing video.
	path, err := lib.Save(id, rec)
	if err != nil {
		return nil, err
	}
	res.Path = path
	return res, nil
}

func downloadVideo(ctx context.Context, lib *Library, client remote.RemoteClient, hash string) error {
	r, contentType, err := client.DownloadVideo(ctx, hash)
	if err != nil {
		return fmt.Errorf("download video %s: %w", hash, err)
	}
	defer r.Close()

	// Put verifies the content against hash.
	if err := lib.Videos.Put(ctx, hash, r, contentType); err != nil {
		return fmt.Errorf("save video %s: %w", hash, err)
	}
	return nil
}
