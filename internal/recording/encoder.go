// Package recording turns a live stream of editor change notifications into a
// timestamped Recording, optionally paired with a video capture.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kilupskalvis/blockcast/internal/editor"
	"github.com/kilupskalvis/blockcast/internal/models"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("not recording")
)

// CaptureInitError reports a paired video capture that failed to start.
type CaptureInitError struct {
	Err error
}

func (e *CaptureInitError) Error() string {
	return fmt.Sprintf("start video capture: %v", e.Err)
}

func (e *CaptureInitError) Unwrap() error {
	return e.Err
}

// Source is the part of the editor the encoder observes.
type Source interface {
	Snapshot() (string, error)
	OnChange(l editor.Listener) editor.Subscription
	OffChange(sub editor.Subscription)
}

// VideoCapture starts a video recording paired with an editor session.
type VideoCapture interface {
	Start(ctx context.Context) (CaptureSession, error)
}

// CaptureSession is a running video capture.
type CaptureSession interface {
	// Stop ends the capture and resolves to a locator for the encoded video.
	Stop(ctx context.Context) (videoURL string, err error)
}

// Clock abstracts time retrieval so timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Option configures an Encoder.
type Option func(*Encoder)

// WithClock sets the clock used for event timestamps.
func WithClock(c Clock) Option {
	return func(e *Encoder) { e.clock = c }
}

// WithCapture pairs every session with a video capture.
func WithCapture(c VideoCapture) Option {
	return func(e *Encoder) { e.capture = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Encoder) { e.logger = l }
}

// Encoder records editor mutations between Begin and End.
type Encoder struct {
	source  Source
	clock   Clock
	capture VideoCapture
	logger  *slog.Logger

	mu          sync.Mutex
	isRecording bool
	starting    bool // Begin is waiting on the video capture
	start       time.Time
	events      []models.Event
	sub         editor.Subscription
	session     CaptureSession
}

// NewEncoder creates an idle encoder observing source.
func NewEncoder(source Source, opts ...Option) *Encoder {
	e := &Encoder{
		source: source,
		clock:  RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Begin starts a session. When a video capture is configured it is started
// first; if it fails, Begin returns a *CaptureInitError and nothing is
// recorded.
func (e *Encoder) Begin(ctx context.Context) error {
	e.mu.Lock()
	if e.isRecording || e.starting {
		e.mu.Unlock()
		return ErrAlreadyRecording
	}
	e.starting = true
	e.mu.Unlock()

	var session CaptureSession
	if e.capture != nil {
		s, err := e.capture.Start(ctx)
		if err != nil {
			e.mu.Lock()
			e.starting = false
			e.mu.Unlock()
			e.logger.Error("recording: video capture failed to start", "error", err)
			return &CaptureInitError{Err: err}
		}
		session = s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.starting = false
	e.session = session
	e.start = e.clock.Now()
	e.events = nil
	e.isRecording = true
	e.sub = e.source.OnChange(e.handleChange)

	e.logger.Info("recording: started", "video", session != nil)
	return nil
}

// End stops the session and returns the finished recording. VideoURL is empty
// when no capture was configured.
func (e *Encoder) End(ctx context.Context) (*models.Recording, error) {
	e.mu.Lock()
	if !e.isRecording {
		e.mu.Unlock()
		return nil, ErrNotRecording
	}
	e.isRecording = false
	e.source.OffChange(e.sub)
	events := e.events
	e.events = nil
	duration := e.clock.Now().Sub(e.start).Milliseconds()
	session := e.session
	e.session = nil
	e.mu.Unlock()

	if events == nil {
		events = []models.Event{}
	}
	rec := &models.Recording{Events: events, Duration: duration}

	if session != nil {
		url, err := session.Stop(ctx)
		if err != nil {
			return nil, fmt.Errorf("stop video capture: %w", err)
		}
		rec.VideoURL = url
	}

	e.logger.Info("recording: finished", "events", len(events), "duration_ms", duration, "video_url", rec.VideoURL)
	return rec, nil
}

// IsRecording reports whether a session is in progress.
func (e *Encoder) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isRecording
}

func (e *Encoder) handleChange(ev editor.ChangeEvent) {
	typ, ok := ev.Kind.EventType()
	if !ok {
		return
	}

	doc, err := e.source.Snapshot()
	if err != nil {
		e.logger.Warn("recording: snapshot failed, change dropped", "kind", ev.Kind, "block_id", ev.BlockID, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isRecording {
		return
	}
	data := models.EventData{
		Document:      doc,
		BlockID:       ev.BlockID,
		NewParentID:   ev.NewParentID,
		OldParentID:   ev.OldParentID,
		NewCoordinate: ev.NewCoordinate,
		OldCoordinate: ev.OldCoordinate,
	}
	// Point learners at a newly created block.
	if typ == models.EventCreate {
		data.HighlightElementID = ev.BlockID
	}
	e.events = append(e.events, models.Event{
		Timestamp: e.clock.Now().Sub(e.start).Milliseconds(),
		Type:      typ,
		Data:      data,
	})
}
