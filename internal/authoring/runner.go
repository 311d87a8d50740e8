package authoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kilupskalvis/blockcast/internal/editor"
	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/recording"
)

// scriptClock reports the scripted session time instead of the wall clock.
type scriptClock struct {
	mu   sync.Mutex
	base time.Time
	at   time.Duration
}

func (c *scriptClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(c.at)
}

func (c *scriptClock) set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = time.Duration(ms) * time.Millisecond
}

// Runner plays scripts into a workspace while an encoder records them.
type Runner struct {
	capture recording.VideoCapture
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCapture pairs every run with a video capture.
func WithCapture(c recording.VideoCapture) RunnerOption {
	return func(r *Runner) { r.capture = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run replays s and returns the resulting recording. A script video_url is
// used when no capture is configured.
func (r *Runner) Run(ctx context.Context, s *Script) (*models.Recording, error) {
	ws := editor.NewWorkspace()
	if s.StartDocument != "" {
		if err := ws.LoadSnapshot(s.StartDocument); err != nil {
			return nil, fmt.Errorf("start_document: %w", err)
		}
	}

	clock := &scriptClock{base: time.Now()}
	opts := []recording.Option{recording.WithClock(clock), recording.WithLogger(r.logger)}
	if r.capture != nil {
		opts = append(opts, recording.WithCapture(r.capture))
	}
	enc := recording.NewEncoder(ws, opts...)

	if err := enc.Begin(ctx); err != nil {
		return nil, err
	}

	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			enc.End(ctx)
			return nil, err
		}
		ev, err := st.changeEvent()
		if err != nil {
			enc.End(ctx)
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		clock.set(st.AtMs)
		if err := ws.Apply(ev, st.Document); err != nil {
			enc.End(ctx)
			return nil, fmt.Errorf("step %d (at %dms): %w", i, st.AtMs, err)
		}
	}

	clock.set(s.EndMs())
	rec, err := enc.End(ctx)
	if err != nil {
		return nil, err
	}
	if r.capture == nil && s.VideoURL != "" {
		rec.VideoURL = s.VideoURL
	}

	r.logger.Debug("script replayed", "title", s.Title, "steps", len(s.Steps), "events", len(rec.Events))
	return rec, nil
}
