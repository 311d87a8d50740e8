// Package metastore provides the server-side recording library storage.
package metastore

import (
	"context"
	"errors"

	"github.com/kilupskalvis/blockcast/internal/models"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// MetaStore defines the contract for the published recording library.
type MetaStore interface {
	HasRecording(ctx context.Context, id string) (bool, error)
	GetRecordingInfo(ctx context.Context, id string) (*models.RecordingInfo, error)
	GetRecording(ctx context.Context, id string) (*models.Recording, error)

	// InsertRecording stores a recording with its library entry.
	// Idempotent: inserting an existing ID is a no-op.
	InsertRecording(ctx context.Context, info *models.RecordingInfo, rec *models.Recording) error

	// ListRecordings returns library entries, newest first. An empty author
	// lists every recording.
	ListRecordings(ctx context.Context, author string) ([]*models.RecordingInfo, error)
	DeleteRecording(ctx context.Context, id string) error
	GetRecordingCount(ctx context.Context) (int, error)

	// GetAllVideoHashes returns the hashes of every stored video a recording
	// references.
	GetAllVideoHashes(ctx context.Context) (map[string]bool, error)

	// Close releases resources.
	Close() error
}
