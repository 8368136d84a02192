package pipeline

import (
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-detect/service/lgr"
	"gocv.io/x/gocv"
)

type UserSignal int

const (
	Continue UserSignal = iota
	CancelRequested
)

func (s UserSignal) String() string {
	if s == CancelRequested {
		return "cancelRequested"
	}
	return "continue"
}

const (
	keyEsc  = 27
	keyQuit = 'q'
	// WaitKey returns -1 when no key was pressed
	noKey = -1
)

// Display is an interactive surface that shows frames and reports key presses
type Display interface {
	Show(frame gocv.Mat)
	PollKey(wait time.Duration) int
	Close() error
}

type windowDisplay struct {
	window *gocv.Window
}

func NewWindowDisplay(title string) Display {
	return &windowDisplay{
		window: gocv.NewWindow(title),
	}
}

func (d *windowDisplay) Show(frame gocv.Mat) {
	d.window.IMShow(frame)
}

func (d *windowDisplay) PollKey(wait time.Duration) int {
	ms := int(wait.Milliseconds())
	if ms < 1 {
		// 0 would block until a key is pressed
		ms = 1
	}
	return d.window.WaitKey(ms)
}

func (d *windowDisplay) Close() error {
	return d.window.Close()
}

type headlessDisplay struct{}

// NewHeadlessDisplay drops frames and never reports a key
func NewHeadlessDisplay() Display {
	return headlessDisplay{}
}

func (headlessDisplay) Show(gocv.Mat) {}

func (headlessDisplay) PollKey(time.Duration) int {
	return noKey
}

func (headlessDisplay) Close() error {
	return nil
}

// Sink presents rendered frames and optionally records them. Recording is best
// effort, its failures are logged and counted but never stop the loop.
type Sink struct {
	display        Display
	recording      *RecordingSession
	keyWait        time.Duration
	recordFailures int
	closed         bool
}

// NewSink takes ownership of display and recording. A nil recording disables
// recording.
func NewSink(display Display, recording *RecordingSession, keyWait time.Duration) *Sink {
	return &Sink{
		display:   display,
		recording: recording,
		keyWait:   keyWait,
	}
}

// Open starts the recording stream. A stream that fails to open leaves the sink
// in display only mode.
func (s *Sink) Open() {
	if s.recording == nil {
		return
	}

	if err := s.recording.Open(); err != nil {
		lgr.Logger.Warn("recording unavailable, continuing without it",
			slog.Any("error", err),
		)
		s.recording.Close()
		s.recording = nil
	}
}

func (s *Sink) Show(frame gocv.Mat) UserSignal {
	s.display.Show(frame)

	key := s.display.PollKey(s.keyWait)
	if key == keyEsc || key == keyQuit {
		lgr.Logger.Info("cancel requested by user", slog.Int("key", key))
		return CancelRequested
	}
	return Continue
}

func (s *Sink) Record(frame gocv.Mat) {
	if s.recording == nil {
		return
	}

	if err := s.recording.Write(frame); err != nil {
		s.recordFailures++
		lgr.Logger.Warn("error recording frame",
			slog.Int("failures", s.recordFailures),
			slog.Any("error", err),
		)
	}
}

func (s *Sink) Recording() bool {
	return s.recording != nil && s.recording.IsOpen()
}

func (s *Sink) RecordFailures() int {
	return s.recordFailures
}

// Close finalizes the recording before releasing the display. It runs once.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var recErr error
	if s.recording != nil {
		recErr = s.recording.Close()
		if recErr != nil {
			lgr.Logger.Warn("error closing recording", slog.Any("error", recErr))
		}
	}

	if err := s.display.Close(); err != nil {
		return err
	}
	return recErr
}
