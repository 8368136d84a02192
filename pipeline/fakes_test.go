package pipeline

import (
	"time"

	"gocv.io/x/gocv"
)

type fakeWriter struct {
	writes int
	closes int
	err    error
}

func (w *fakeWriter) Write(gocv.Mat) error {
	if w.err != nil {
		return w.err
	}
	w.writes++
	return nil
}

func (w *fakeWriter) Close() error {
	w.closes++
	return nil
}

func openerFor(w *fakeWriter) WriterOpener {
	return func(RecordingParams) (FrameWriter, error) {
		return w, nil
	}
}

// fakeDisplay replays keys, one per PollKey call, then reports no key
type fakeDisplay struct {
	keys   []int
	shown  int
	polls  int
	closes int
}

func (d *fakeDisplay) Show(gocv.Mat) {
	d.shown++
}

func (d *fakeDisplay) PollKey(time.Duration) int {
	d.polls++
	if d.polls <= len(d.keys) {
		return d.keys[d.polls-1]
	}
	return noKey
}

func (d *fakeDisplay) Close() error {
	d.closes++
	return nil
}

func blankFrame(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}
