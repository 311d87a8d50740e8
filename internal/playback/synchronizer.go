// Package playback keeps an editor surface in step with a video's playback
// position by replaying the snapshots of a recording.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/blockcast/internal/editor"
	"github.com/kilupskalvis/blockcast/internal/models"
)

// Surface is the part of the editor the synchronizer drives.
type Surface interface {
	LoadSnapshot(document string) error
	ViewPosition() editor.ViewPosition
	SetViewPosition(pos editor.ViewPosition)
	Highlight(elementID string)
}

// noneApplied is the cursor sentinel before any event has been applied.
const noneApplied int64 = -1

// Synchronizer replays a recording onto a surface. After every Advance the
// surface holds the snapshot of the latest event at or before the given time.
//
// A Synchronizer is driven by a single time signal and does no locking; use
// one instance per surface. The loaded recording is only read, so several
// synchronizers may share it.
type Synchronizer struct {
	surface Surface
	logger  *slog.Logger

	rec     *models.Recording
	running bool

	// cursor
	position    int
	lastApplied int64
}

// New creates a stopped synchronizer with no recording loaded.
func New(surface Surface, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		surface:     surface,
		logger:      logger,
		lastApplied: noneApplied,
	}
}

// Load replaces the active recording and rewinds the cursor. Nothing is
// applied until the next Advance. A nil or invalid recording is logged and
// ignored; the previous recording and cursor stay in place.
func (s *Synchronizer) Load(rec *models.Recording) error {
	if err := rec.Validate(); err != nil {
		s.logger.Warn("playback: recording not loaded", "error", err)
		return err
	}
	s.rec = rec
	s.reset()
	s.logger.Debug("playback: recording loaded", "events", len(rec.Events), "video_url", rec.VideoURL)
	return nil
}

// Start lets Advance take effect.
func (s *Synchronizer) Start() {
	s.running = true
}

// Stop makes Advance a no-op without discarding the cursor.
func (s *Synchronizer) Stop() {
	s.running = false
}

// Running reports whether Advance currently has any effect.
func (s *Synchronizer) Running() bool {
	return s.running
}

// Position returns the number of events already applied.
func (s *Synchronizer) Position() int {
	return s.position
}

// LastApplied returns the timestamp of the most recently applied event.
func (s *Synchronizer) LastApplied() (int64, bool) {
	if s.lastApplied == noneApplied {
		return 0, false
	}
	return s.lastApplied, true
}

// Advance brings the surface up to currentTimeMs and returns how many events
// were applied, failed ones included. It is a no-op while stopped.
func (s *Synchronizer) Advance(currentTimeMs int64) int {
	if !s.running {
		return 0
	}
	return s.sync(currentTimeMs)
}

// Seek is Advance for explicit user seeks: it applies even while stopped, so
// a paused editor still follows the scrubber.
func (s *Synchronizer) Seek(currentTimeMs int64) int {
	return s.sync(currentTimeMs)
}

func (s *Synchronizer) sync(currentTimeMs int64) int {
	if s.rec == nil {
		return 0
	}

	// Events only move forward, so a backward seek replays from the start.
	if s.lastApplied != noneApplied && currentTimeMs < s.lastApplied {
		s.logger.Debug("playback: backward seek, replaying from start",
			"time_ms", currentTimeMs, "last_applied_ms", s.lastApplied)
		s.reset()
	}

	applied := 0
	events := s.rec.Events
	for s.position < len(events) && events[s.position].Timestamp <= currentTimeMs {
		ev := events[s.position]
		if err := s.apply(s.position, ev); err != nil {
			s.logger.Warn("playback: event skipped", "error", err)
		}
		s.position++
		s.lastApplied = ev.Timestamp
		applied++
	}
	return applied
}

// apply loads one event's snapshot without moving the viewport.
func (s *Synchronizer) apply(index int, ev models.Event) error {
	err := s.load(ev)
	if err == nil {
		return nil
	}
	var ae *editor.ApplyError
	if !errors.As(err, &ae) {
		ae = &editor.ApplyError{Err: err}
	}
	ae.EventIndex = index
	ae.Timestamp = ev.Timestamp
	return ae
}

func (s *Synchronizer) load(ev models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("editor panic: %v", r)
		}
	}()

	if err := s.loadKeepingView(ev.Data.Document); err != nil {
		return err
	}
	if ev.Data.HighlightElementID != "" {
		s.surface.Highlight(ev.Data.HighlightElementID)
	}
	return nil
}

// loadKeepingView replaces the document and puts the view back where it was,
// even if the surface panics mid-load.
func (s *Synchronizer) loadKeepingView(doc string) error {
	view := s.surface.ViewPosition()
	defer s.surface.SetViewPosition(view)
	return s.surface.LoadSnapshot(doc)
}

func (s *Synchronizer) reset() {
	s.position = 0
	s.lastApplied = noneApplied
}

// Follow drives s from a stream of playback times until ticks is closed or
// ctx is done. It must be the only caller of s while it runs.
func Follow(ctx context.Context, s *Synchronizer, ticks <-chan int64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				return nil
			}
			s.Advance(t)
		}
	}
}
