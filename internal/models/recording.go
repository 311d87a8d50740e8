package models

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Recording is an ordered list of events plus the paired video. It is not
// modified after creation and may be shared between readers.
type Recording struct {
	Events   []Event `json:"events"`
	VideoURL string  `json:"videoUrl"`
	Duration int64   `json:"duration,omitempty"` // ms
}

// LoadError reports a recording that cannot be replayed.
type LoadError struct {
	Index  int // offending event, -1 when not event specific
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := "invalid recording"
	if e.Index >= 0 {
		msg = fmt.Sprintf("invalid recording: event %d", e.Index)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Validate checks the invariants replay depends on: known event types,
// non-negative timestamps and ascending order.
func (r *Recording) Validate() error {
	if r == nil {
		return &LoadError{Index: -1, Reason: "recording is nil"}
	}
	var prev int64
	for i, ev := range r.Events {
		if !ev.Type.Valid() {
			return &LoadError{Index: i, Reason: fmt.Sprintf("unknown event type %q", ev.Type)}
		}
		if ev.Timestamp < 0 {
			return &LoadError{Index: i, Reason: fmt.Sprintf("negative timestamp %d", ev.Timestamp)}
		}
		if i > 0 && ev.Timestamp < prev {
			return &LoadError{Index: i, Reason: fmt.Sprintf("timestamp %d precedes %d", ev.Timestamp, prev)}
		}
		prev = ev.Timestamp
	}
	if r.Duration < 0 {
		return &LoadError{Index: -1, Reason: "negative duration"}
	}
	return nil
}

// LastTimestamp returns the timestamp of the final event, or 0 when empty.
func (r *Recording) LastTimestamp() int64 {
	if len(r.Events) == 0 {
		return 0
	}
	return r.Events[len(r.Events)-1].Timestamp
}

// Length returns the playable length: the recorded duration when known,
// otherwise the last event timestamp.
func (r *Recording) Length() time.Duration {
	ms := r.Duration
	if last := r.LastTimestamp(); last > ms {
		ms = last
	}
	return time.Duration(ms) * time.Millisecond
}

// DecodeRecording reads a recording in its persisted JSON form and validates it.
func DecodeRecording(rd io.Reader) (*Recording, error) {
	var rec Recording
	if err := json.NewDecoder(rd).Decode(&rec); err != nil {
		return nil, &LoadError{Index: -1, Reason: "decode", Err: err}
	}
	if rec.Events == nil {
		rec.Events = []Event{}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// EncodeRecording writes rec in its persisted JSON form.
func EncodeRecording(w io.Writer, rec *Recording) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	return nil
}
