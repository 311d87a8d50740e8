// Package blobstore provides content-addressable storage for recording videos.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrVideoNotFound is returned when a requested video does not exist.
var ErrVideoNotFound = errors.New("video not found")

// ErrHashMismatch is returned when uploaded bytes do not hash to the claimed address.
var ErrHashMismatch = errors.New("video hash mismatch")

// ErrTooLarge is returned when an upload exceeds the store's size limit.
var ErrTooLarge = errors.New("video too large")

// VideoMeta describes a stored video.
type VideoMeta struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// VideoStore defines the contract for content-addressable video storage.
type VideoStore interface {
	// Has checks whether a video with the given hash exists.
	Has(ctx context.Context, hash string) (bool, error)

	// Get returns a reader for the video and its metadata.
	// Returns ErrVideoNotFound if the video does not exist.
	Get(ctx context.Context, hash string) (io.ReadCloser, *VideoMeta, error)

	// Put stores a video. The hash is verified against the data.
	// Storing the same video twice is a no-op.
	Put(ctx context.Context, hash string, r io.Reader, contentType string) error

	// Delete removes a video. No error if it doesn't exist.
	Delete(ctx context.Context, hash string) error

	// ListHashes returns all video hashes in the store.
	ListHashes(ctx context.Context) ([]string, error)
}
