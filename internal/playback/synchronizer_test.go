package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/kilupskalvis/blockcast/internal/editor"
	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSurface records every call made by the synchronizer.
type fakeSurface struct {
	calls     []string
	loaded    []string
	current   string
	view      editor.ViewPosition
	failOn    map[string]error
	panicOn   map[string]bool
	highlight string
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{failOn: map[string]error{}, panicOn: map[string]bool{}}
}

func (f *fakeSurface) LoadSnapshot(doc string) error {
	f.calls = append(f.calls, "load:"+doc)
	if f.panicOn[doc] {
		f.view = editor.ViewPosition{}
		panic("boom")
	}
	if err := f.failOn[doc]; err != nil {
		return err
	}
	f.loaded = append(f.loaded, doc)
	f.current = doc
	// a real editor scrolls when content is replaced
	f.view = editor.ViewPosition{}
	return nil
}

func (f *fakeSurface) ViewPosition() editor.ViewPosition {
	f.calls = append(f.calls, "view")
	return f.view
}

func (f *fakeSurface) SetViewPosition(pos editor.ViewPosition) {
	f.calls = append(f.calls, fmt.Sprintf("scroll:%v,%v", pos.Left, pos.Top))
	f.view = pos
}

func (f *fakeSurface) Highlight(id string) {
	f.calls = append(f.calls, "highlight:"+id)
	f.highlight = id
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingAt builds a recording whose snapshot documents are "s<timestamp>".
func recordingAt(timestamps ...int64) *models.Recording {
	rec := &models.Recording{VideoURL: "/tutorial/demo.mp4"}
	for _, ts := range timestamps {
		rec.Events = append(rec.Events, models.Event{
			Timestamp: ts,
			Type:      models.EventCreate,
			Data:      models.EventData{Document: fmt.Sprintf("s%d", ts)},
		})
	}
	return rec
}

func newRunning(t *testing.T, rec *models.Recording) (*Synchronizer, *fakeSurface) {
	t.Helper()
	surface := newFakeSurface()
	s := New(surface, quietLogger())
	require.NoError(t, s.Load(rec))
	s.Start()
	return s, surface
}

func TestAdvance_MonotoneCatchUp(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200, 300))

	for _, now := range []int64{0, 50, 120, 199, 260, 400, 500} {
		s.Advance(now)
	}

	assert.Equal(t, []string{"s0", "s100", "s200", "s300"}, surface.loaded)
	assert.Equal(t, "s300", surface.current)
	assert.Equal(t, 4, s.Position())
}

func TestAdvance_FinalStateMatchesLatestEligibleEvent(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200, 300))

	s.Advance(10)
	s.Advance(250)

	assert.Equal(t, "s200", surface.current)
	last, ok := s.LastApplied()
	require.True(t, ok)
	assert.Equal(t, int64(200), last)
}

func TestAdvance_Idempotent(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200))

	assert.Equal(t, 2, s.Advance(150))
	calls := len(surface.calls)

	assert.Equal(t, 0, s.Advance(150))
	assert.Equal(t, calls, len(surface.calls), "second call must not touch the surface")

	assert.Equal(t, 0, s.Advance(151))
	assert.Equal(t, []string{"s0", "s100"}, surface.loaded)
}

func TestAdvance_BackwardSeekResets(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200))

	assert.Equal(t, 3, s.Advance(250))
	surface.loaded = nil

	assert.Equal(t, 1, s.Advance(50))
	assert.Equal(t, []string{"s0"}, surface.loaded)
	assert.Equal(t, 1, s.Position())
	assert.Equal(t, "s0", surface.current)
}

func TestAdvance_BackwardSeekBeforeFirstEvent(t *testing.T) {
	s, surface := newRunning(t, recordingAt(100, 200))

	s.Advance(200)
	surface.loaded = nil

	assert.Equal(t, 0, s.Advance(50))
	assert.Empty(t, surface.loaded)
	assert.Equal(t, 0, s.Position())
	_, ok := s.LastApplied()
	assert.False(t, ok)

	// Moving forward again replays from the start.
	assert.Equal(t, 1, s.Advance(150))
	assert.Equal(t, []string{"s100"}, surface.loaded)
}

func TestAdvance_LargeForwardJump(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200, 300))

	assert.Equal(t, 4, s.Advance(1000))
	assert.Equal(t, []string{"s0", "s100", "s200", "s300"}, surface.loaded)
}

func TestAdvance_TiesInStoredOrder(t *testing.T) {
	rec := recordingAt(100, 150, 150, 200)
	rec.Events[1].Data.Document = "first"
	rec.Events[2].Data.Document = "second"

	t.Run("single call", func(t *testing.T) {
		s, surface := newRunning(t, rec)
		s.Advance(150)
		assert.Equal(t, []string{"s100", "first", "second"}, surface.loaded)
	})

	t.Run("stepwise", func(t *testing.T) {
		s, surface := newRunning(t, rec)
		s.Advance(120)
		s.Advance(150)
		s.Advance(150)
		s.Advance(300)
		assert.Equal(t, []string{"s100", "first", "second", "s200"}, surface.loaded)
	})

	t.Run("seek back onto tie", func(t *testing.T) {
		s, surface := newRunning(t, rec)
		s.Advance(300)
		surface.loaded = nil
		s.Advance(150)
		assert.Equal(t, []string{"s100", "first", "second"}, surface.loaded)
	})
}

func TestAdvance_EmptyRecording(t *testing.T) {
	s, surface := newRunning(t, &models.Recording{Events: []models.Event{}, VideoURL: "/v.mp4"})

	for _, now := range []int64{0, 100, 50, 1_000_000} {
		assert.Equal(t, 0, s.Advance(now))
	}
	assert.Empty(t, surface.calls)
}

func TestAdvance_PartialFailureIsolation(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200, 300))
	surface.failOn["s100"] = &editor.ApplyError{EventIndex: -1, Err: errors.New("bad xml")}

	assert.Equal(t, 4, s.Advance(300))
	assert.Equal(t, []string{"s0", "s200", "s300"}, surface.loaded)
	assert.Equal(t, 4, s.Position())
	assert.Equal(t, 0, s.Advance(300), "failed event is not retried")
}

func TestAdvance_PanicIsolation(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200))
	surface.panicOn["s100"] = true

	assert.NotPanics(t, func() { s.Advance(500) })
	assert.Equal(t, []string{"s0", "s200"}, surface.loaded)
}

func TestAdvance_PanickingLoadRestoresView(t *testing.T) {
	rec := recordingAt(0)
	rec.Events[0].Data.HighlightElementID = "block2"
	s, surface := newRunning(t, rec)
	surface.view = editor.ViewPosition{Left: 12, Top: 34}
	surface.panicOn["s0"] = true

	assert.NotPanics(t, func() { s.Advance(0) })
	assert.Equal(t, []string{"view", "load:s0", "scroll:12,34"}, surface.calls)
	assert.Equal(t, editor.ViewPosition{Left: 12, Top: 34}, surface.view)
	assert.Empty(t, surface.highlight)
}

func TestApply_WrapsErrorWithEventIndex(t *testing.T) {
	surface := newFakeSurface()
	surface.failOn["s100"] = errors.New("plain failure")
	s := New(surface, quietLogger())

	err := s.apply(1, recordingAt(0, 100).Events[1])
	var ae *editor.ApplyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.EventIndex)
	assert.Equal(t, int64(100), ae.Timestamp)
	assert.EqualError(t, errors.Unwrap(err), "plain failure")
}

func TestAdvance_PreservesViewAndHighlights(t *testing.T) {
	rec := recordingAt(0)
	rec.Events[0].Data.HighlightElementID = "block2"
	s, surface := newRunning(t, rec)
	surface.view = editor.ViewPosition{Left: 30, Top: 70}

	s.Advance(0)

	assert.Equal(t, []string{"view", "load:s0", "scroll:30,70", "highlight:block2"}, surface.calls)
	assert.Equal(t, editor.ViewPosition{Left: 30, Top: 70}, surface.view)
}

func TestAdvance_FailedLoadSkipsHighlightButRestoresView(t *testing.T) {
	rec := recordingAt(0)
	rec.Events[0].Data.HighlightElementID = "block2"
	s, surface := newRunning(t, rec)
	surface.view = editor.ViewPosition{Left: 5, Top: 5}
	surface.failOn["s0"] = errors.New("nope")

	s.Advance(10)

	assert.Equal(t, []string{"view", "load:s0", "scroll:5,5"}, surface.calls)
}

func TestAdvance_StoppedIsNoop(t *testing.T) {
	surface := newFakeSurface()
	s := New(surface, quietLogger())
	require.NoError(t, s.Load(recordingAt(0, 100)))

	assert.False(t, s.Running())
	assert.Equal(t, 0, s.Advance(500))
	assert.Empty(t, surface.calls)

	s.Start()
	assert.Equal(t, 1, s.Advance(50))
	s.Stop()
	assert.Equal(t, 0, s.Advance(500))
	assert.Equal(t, 1, s.Position(), "pause keeps the cursor")

	s.Start()
	assert.Equal(t, 1, s.Advance(500))
}

func TestSeek_AppliesWhileStopped(t *testing.T) {
	surface := newFakeSurface()
	s := New(surface, quietLogger())
	require.NoError(t, s.Load(recordingAt(0, 100, 200)))

	assert.Equal(t, 2, s.Seek(150))
	assert.Equal(t, []string{"s0", "s100"}, surface.loaded)
	assert.False(t, s.Running())
}

func TestLoad_ResetsCursorWithoutApplying(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100))
	s.Advance(500)
	calls := len(surface.calls)

	require.NoError(t, s.Load(recordingAt(0, 50)))
	assert.Equal(t, 0, s.Position())
	assert.Equal(t, calls, len(surface.calls))

	assert.Equal(t, 2, s.Advance(500))
}

func TestLoad_InvalidKeepsPrevious(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200))
	s.Advance(100)

	var le *models.LoadError
	assert.ErrorAs(t, s.Load(nil), &le)
	assert.ErrorAs(t, s.Load(recordingAt(200, 100)), &le)

	assert.Equal(t, 2, s.Position())
	assert.Equal(t, 1, s.Advance(200))
	assert.Equal(t, []string{"s0", "s100", "s200"}, surface.loaded)
}

func TestAdvance_NoRecording(t *testing.T) {
	surface := newFakeSurface()
	s := New(surface, quietLogger())
	s.Start()
	assert.Equal(t, 0, s.Advance(100))
	assert.Empty(t, surface.calls)
}

func TestSynchronizers_ShareRecording(t *testing.T) {
	rec := recordingAt(0, 100, 200)
	main, mainSurface := newRunning(t, rec)
	preview, previewSurface := newRunning(t, rec)

	main.Advance(200)
	preview.Advance(50)

	assert.Equal(t, "s200", mainSurface.current)
	assert.Equal(t, "s0", previewSurface.current)
	assert.Equal(t, 3, main.Position())
	assert.Equal(t, 1, preview.Position())
}

func TestAdvance_WorkspaceSurface(t *testing.T) {
	rec := &models.Recording{Events: []models.Event{
		{Timestamp: 0, Type: models.EventCreate, Data: models.EventData{
			Document: `<xml><block id="a" type="event_whenflagclicked"></block></xml>`,
		}},
		{Timestamp: 10, Type: models.EventCreate, Data: models.EventData{Document: `<xml><block id="a">`}},
		{Timestamp: 20, Type: models.EventCreate, Data: models.EventData{
			Document:           `<xml><block id="a" type="x"></block><block id="b" type="y"></block></xml>`,
			HighlightElementID: "b",
		}},
	}}

	ws := editor.NewWorkspace()
	ws.SetViewPosition(editor.ViewPosition{Left: 3, Top: 4})
	s := New(ws, quietLogger())
	require.NoError(t, s.Load(rec))
	s.Start()

	assert.Equal(t, 3, s.Advance(20))
	assert.Equal(t, []string{"a", "b"}, ws.Blocks())
	assert.Equal(t, "b", ws.Highlighted())
	assert.Equal(t, 2, ws.Loads())
	assert.Equal(t, editor.ViewPosition{Left: 3, Top: 4}, ws.ViewPosition())
}

func TestFollow(t *testing.T) {
	s, surface := newRunning(t, recordingAt(0, 100, 200))

	ticks := make(chan int64, 4)
	ticks <- 0
	ticks <- 150
	ticks <- 150
	ticks <- 250
	close(ticks)

	require.NoError(t, Follow(context.Background(), s, ticks))
	assert.Equal(t, []string{"s0", "s100", "s200"}, surface.loaded)
}

func TestFollow_Cancelled(t *testing.T) {
	s, _ := newRunning(t, recordingAt(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Follow(ctx, s, make(chan int64))
	assert.ErrorIs(t, err, context.Canceled)
}
