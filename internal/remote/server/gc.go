package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/blockcast/internal/remote"
	"github.com/kilupskalvis/blockcast/internal/remote/blobstore"
	"github.com/kilupskalvis/blockcast/internal/remote/metastore"
)

// GarbageCollect removes stored videos that no recording references.
func GarbageCollect(ctx context.Context, meta metastore.MetaStore, videos blobstore.VideoStore, logger *slog.Logger) (*remote.GCResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	result := &remote.GCResult{}

	referenced, err := meta.GetAllVideoHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("get referenced videos: %w", err)
	}
	result.ReferencedVideos = len(referenced)

	all, err := videos.ListHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list video hashes: %w", err)
	}
	result.VideosScanned = len(all)

	for _, hash := range all {
		if referenced[hash] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := videos.Delete(ctx, hash); err != nil {
			logger.Warn("gc: failed to delete video", "hash", hash, "error", err)
			continue
		}
		result.VideosDeleted++
	}

	logger.Info("gc complete",
		"scanned", result.VideosScanned,
		"referenced", result.ReferencedVideos,
		"deleted", result.VideosDeleted,
	)

	return result, nil
}
