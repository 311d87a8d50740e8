package core

import (
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/blockcast/internal/editor"
	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/playback"
)

// Frame is the editor state a viewer sees at one playback time.
type Frame struct {
	AtMs        int64
	Position    int
	LastApplied *int64
	Highlight   string
	Blocks      []string
	Document    string
}

// Preview replays rec onto an in-process workspace and captures the state at
// each of times. Times are visited in the given order.
func Preview(rec *models.Recording, times []int64, logger *slog.Logger) ([]Frame, error) {
	var (
		ws     *editor.Workspace
		player *playback.Synchronizer
	)
	reset := func() error {
		ws = editor.NewWorkspace()
		player = playback.New(ws, logger)
		return player.Load(rec)
	}
	if err := reset(); err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, len(times))
	var prev int64
	for i, at := range times {
		if at < 0 {
			return nil, fmt.Errorf("negative playback time %d", at)
		}
		// A backward seek replays from the start, but the surface would keep
		// content from later events until the first one is reached again.
		if i > 0 && at < prev {
			if err := reset(); err != nil {
				return nil, err
			}
		}
		prev = at

		player.Seek(at)
		f, err := captureFrame(ws, player, at)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// frameSurface is the workspace state a Frame is read from.
type frameSurface interface {
	Snapshot() (string, error)
	Highlighted() string
	Blocks() []string
}

func captureFrame(ws frameSurface, player *playback.Synchronizer, at int64) (Frame, error) {
	doc, err := ws.Snapshot()
	if err != nil {
		return Frame{}, fmt.Errorf("snapshot at %dms: %w", at, err)
	}
	f := Frame{
		AtMs:      at,
		Position:  player.Position(),
		Highlight: ws.Highlighted(),
		Blocks:    ws.Blocks(),
		Document:  doc,
	}
	if ts, ok := player.LastApplied(); ok {
		f.LastApplied = &ts
	}
	return f, nil
}

// StepTimes returns 0, step, 2*step, ... up to and including the recording's
// length.
func StepTimes(rec *models.Recording, step int64) ([]int64, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", step)
	}
	end := rec.Length().Milliseconds()
	var times []int64
	for t := int64(0); t <= end; t += step {
		times = append(times, t)
	}
	if times[len(times)-1] != end {
		times = append(times, end)
	}
	return times, nil
}
