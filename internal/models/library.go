package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// RecordingInfo is the library entry stored alongside a published recording.
type RecordingInfo struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"created_at"`
	EventCount int       `json:"event_count"`
	DurationMs int64     `json:"duration_ms"`
	VideoURL   string    `json:"video_url,omitempty"`
}

// ShortID returns a shortened recording ID (first 8 characters)
func (i *RecordingInfo) ShortID() string {
	if len(i.ID) > 8 {
		return i.ID[:8]
	}
	return i.ID
}

// GenerateRecordingID derives a content-addressable ID from the author and the
// recording's persisted form, so republishing the same recording is idempotent.
func GenerateRecordingID(author string, rec *Recording) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal recording: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(author))
	h.Write([]byte{'|'})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewRecordingInfo builds the library entry for rec.
func NewRecordingInfo(id, title, author string, rec *Recording, createdAt time.Time) *RecordingInfo {
	return &RecordingInfo{
		ID:         id,
		Title:      title,
		Author:     author,
		CreatedAt:  createdAt,
		EventCount: len(rec.Events),
		DurationMs: rec.Length().Milliseconds(),
		VideoURL:   rec.VideoURL,
	}
}
