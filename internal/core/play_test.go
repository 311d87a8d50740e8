package core

import (
	"io"
	"log/slog"
	"testing"

	"github.com/kilupskalvis/blockcast/internal/editor"
	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPreview(t *testing.T) {
	frames, err := Preview(testRecording(""), []int64{0, 1000, 2500, 9000}, quietLogger())
	require.NoError(t, err)
	require.Len(t, frames, 4)

	assert.Equal(t, 0, frames[0].Position)
	assert.Nil(t, frames[0].LastApplied)
	assert.Empty(t, frames[0].Blocks)

	assert.Equal(t, 1, frames[1].Position)
	assert.Equal(t, "b1", frames[1].Highlight)
	assert.Equal(t, []string{"b1"}, frames[1].Blocks)

	assert.Equal(t, 2, frames[2].Position)
	require.NotNil(t, frames[2].LastApplied)
	assert.Equal(t, int64(2000), *frames[2].LastApplied)
	assert.Equal(t, "b2", frames[2].Highlight)
	assert.Equal(t, []string{"b1", "b2"}, frames[2].Blocks)

	assert.Equal(t, 3, frames[3].Position)
	assert.Equal(t, []string{"b1"}, frames[3].Blocks)
	assert.Empty(t, frames[3].Highlight, "deleted block loses the highlight")
}

func TestPreview_BackwardTimeStartsOver(t *testing.T) {
	frames, err := Preview(testRecording(""), []int64{3000, 500}, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"b1", "b2"}, frames[0].Blocks)
	assert.Equal(t, 0, frames[1].Position)
	assert.Empty(t, frames[1].Blocks)
	assert.Equal(t, "<xml></xml>", frames[1].Document)
}

func TestPreview_Rejects(t *testing.T) {
	_, err := Preview(testRecording(""), []int64{-1}, quietLogger())
	assert.Error(t, err)

	bad := &models.Recording{Events: []models.Event{{Timestamp: -5, Type: models.EventCreate}}}
	_, err = Preview(bad, []int64{0}, quietLogger())
	assert.Error(t, err)
}

func TestStepTimes(t *testing.T) {
	times, err := StepTimes(testRecording(""), 1500)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1500, 3000, 4000}, times)

	times, err = StepTimes(testRecording(""), 2000)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2000, 4000}, times)

	times, err = StepTimes(&models.Recording{Events: []models.Event{}}, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, times)

	_, err = StepTimes(testRecording(""), 0)
	assert.Error(t, err)
}

type brokenSnapshot struct {
	*editor.Workspace
}

func (brokenSnapshot) Snapshot() (string, error) { return "", errBoom }

func TestCaptureFrame_SnapshotError(t *testing.T) {
	ws := editor.NewWorkspace()
	player := playback.New(ws, quietLogger())
	require.NoError(t, player.Load(testRecording("")))
	player.Seek(1000)

	f, err := captureFrame(ws, player, 1000)
	require.NoError(t, err)
	require.NotNil(t, f.LastApplied)
	assert.Equal(t, int64(1000), *f.LastApplied)

	_, err = captureFrame(brokenSnapshot{ws}, player, 1000)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, "snapshot at 1000ms")
}
