package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testRecording(w *fakeWriter) *RecordingSession {
	return NewRecordingSession(RecordingParams{
		Path:   "output.avi",
		Codec:  "H264",
		FPS:    25,
		Width:  384,
		Height: 288,
	}, openerFor(w))
}

func TestRecordingLifecycle(t *testing.T) {
	w := &fakeWriter{}
	rec := testRecording(w)

	frame := blankFrame(288, 384)
	defer frame.Close()

	require.ErrorIs(t, rec.Write(frame), ErrRecordingNotOpen)
	require.Zero(t, w.writes)

	require.NoError(t, rec.Open())
	require.True(t, rec.IsOpen())
	require.NoError(t, rec.Write(frame))
	require.NoError(t, rec.Write(frame))
	require.Equal(t, 2, rec.Frames())

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	require.Equal(t, 1, w.closes)
	require.False(t, rec.IsOpen())

	require.ErrorIs(t, rec.Write(frame), ErrRecordingNotOpen)
	require.ErrorIs(t, rec.Open(), ErrRecordingNotOpen)
	require.Equal(t, 2, w.writes)
}

func TestRecordingRejectsFrameSize(t *testing.T) {
	w := &fakeWriter{}
	rec := testRecording(w)
	require.NoError(t, rec.Open())
	defer rec.Close()

	frame := blankFrame(100, 100)
	defer frame.Close()

	require.ErrorIs(t, rec.Write(frame), ErrFrameSize)
	require.Zero(t, w.writes)
}

func TestSinkShowSignals(t *testing.T) {
	display := &fakeDisplay{keys: []int{noKey, 'x', keyEsc, keyQuit}}
	sink := NewSink(display, nil, 0)

	frame := blankFrame(10, 10)
	defer frame.Close()

	require.Equal(t, Continue, sink.Show(frame))
	require.Equal(t, Continue, sink.Show(frame))
	require.Equal(t, CancelRequested, sink.Show(frame))
	require.Equal(t, CancelRequested, sink.Show(frame))
	require.Equal(t, 4, display.shown)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	require.Equal(t, 1, display.closes)
}

func TestSinkRecordFailureIsNotFatal(t *testing.T) {
	w := &fakeWriter{err: errors.New("disk full")}
	display := &fakeDisplay{}
	sink := NewSink(display, testRecording(w), 0)
	sink.Open()
	require.True(t, sink.Recording())

	frame := blankFrame(288, 384)
	defer frame.Close()

	sink.Record(frame)
	sink.Record(frame)
	require.Equal(t, 2, sink.RecordFailures())
	require.Equal(t, Continue, sink.Show(frame))

	require.NoError(t, sink.Close())
	require.Equal(t, 1, w.closes)
	require.Equal(t, 1, display.closes)
}

func TestSinkDegradesWhenRecordingFailsToOpen(t *testing.T) {
	rec := NewRecordingSession(RecordingParams{Path: "x.avi", Width: 10, Height: 10}, func(RecordingParams) (FrameWriter, error) {
		return nil, errors.New("no codec")
	})
	sink := NewSink(&fakeDisplay{}, rec, 0)
	sink.Open()
	require.False(t, sink.Recording())

	frame := blankFrame(10, 10)
	defer frame.Close()

	sink.Record(frame)
	require.Zero(t, sink.RecordFailures())
	require.NoError(t, sink.Close())
}

func TestHeadlessDisplay(t *testing.T) {
	d := NewHeadlessDisplay()
	require.Equal(t, noKey, d.PollKey(0))
	require.NoError(t, d.Close())
}
