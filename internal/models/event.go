package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType is the kind of editor mutation an event records.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventMove   EventType = "MOVE"
	EventDelete EventType = "DELETE"
	EventChange EventType = "CHANGE"
)

// editorTagPrefix is carried by fixtures authored against the block editor's own
// event names (BLOCK_CREATE, BLOCK_MOVE, ...).
const editorTagPrefix = "BLOCK_"

// ParseEventType maps a tag onto the closed set of event types.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(strings.TrimPrefix(strings.ToUpper(s), editorTagPrefix)); t {
	case EventCreate, EventMove, EventDelete, EventChange:
		return t, nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Valid reports whether t is one of the tracked mutation kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventCreate, EventMove, EventDelete, EventChange:
		return true
	}
	return false
}

// UnmarshalJSON accepts canonical and editor-native tags.
func (t *EventType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("event type: %w", err)
	}
	parsed, err := ParseEventType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Coordinate is an [x, y] workspace position.
type Coordinate [2]float64

// EventData is the payload of an event. Document is the complete serialized
// editor state after the mutation and is never interpreted here.
type EventData struct {
	Document           string      `json:"document"`
	HighlightElementID string      `json:"highlightElementId,omitempty"`
	BlockID            string      `json:"blockId,omitempty"`
	NewParentID        string      `json:"newParentId,omitempty"`
	OldParentID        string      `json:"oldParentId,omitempty"`
	NewCoordinate      *Coordinate `json:"newCoordinate,omitempty"`
	OldCoordinate      *Coordinate `json:"oldCoordinate,omitempty"`
}

// Event is one timestamped editor mutation.
type Event struct {
	Timestamp int64     `json:"timestamp"` // ms from recording start
	Type      EventType `json:"type"`
	Data      EventData `json:"data"`
}
