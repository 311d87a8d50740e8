// Package editor defines the block-editor surface contract shared by recording
// and playback, and an in-memory Workspace that implements it.
package editor

import (
	"fmt"

	"github.com/kilupskalvis/blockcast/internal/models"
)

// ChangeKind tags a change notification.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "CREATE"
	ChangeMove   ChangeKind = "MOVE"
	ChangeDelete ChangeKind = "DELETE"
	ChangeChange ChangeKind = "CHANGE"

	// UI notifications; never recorded.
	ChangeViewport ChangeKind = "VIEWPORT"
	ChangeSelected ChangeKind = "SELECTED"
)

// EventType maps a mutation kind to its recorded event type. ok is false for
// kinds that are not recorded.
func (k ChangeKind) EventType() (t models.EventType, ok bool) {
	switch k {
	case ChangeCreate:
		return models.EventCreate, true
	case ChangeMove:
		return models.EventMove, true
	case ChangeDelete:
		return models.EventDelete, true
	case ChangeChange:
		return models.EventChange, true
	}
	return "", false
}

// ChangeEvent is a mutation notification with its positional metadata.
type ChangeEvent struct {
	Kind          ChangeKind
	BlockID       string
	NewParentID   string
	OldParentID   string
	NewCoordinate *models.Coordinate
	OldCoordinate *models.Coordinate
}

// Listener receives change notifications.
type Listener func(ChangeEvent)

// Subscription identifies a registered listener for OffChange.
type Subscription uint64

// ViewPosition is the viewport scroll offset.
type ViewPosition struct {
	Left float64
	Top  float64
}

// ApplyError reports a snapshot that could not be loaded into the editor.
type ApplyError struct {
	EventIndex int // -1 when the failure is not tied to a recorded event
	Timestamp  int64
	Err        error
}

func (e *ApplyError) Error() string {
	if e.EventIndex < 0 {
		return fmt.Sprintf("apply snapshot: %v", e.Err)
	}
	return fmt.Sprintf("apply event %d (t=%dms): %v", e.EventIndex, e.Timestamp, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
