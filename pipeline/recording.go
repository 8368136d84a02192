package pipeline

import (
	"log/slog"

	"github.com/khaledhikmat/vs-detect/service/lgr"
	xerrs "github.com/mdobak/go-xerrors"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

var (
	ErrRecordingNotOpen = xerrs.New("recording session is not open")
	ErrFrameSize        = xerrs.New("frame size does not match the recording size")
)

// FrameWriter is the part of gocv.VideoWriter the recording session needs
type FrameWriter interface {
	Write(img gocv.Mat) error
	Close() error
}

// WriterOpener creates the underlying video stream
type WriterOpener func(params RecordingParams) (FrameWriter, error)

type RecordingParams struct {
	Path   string
	Codec  string
	FPS    float64
	Width  int
	Height int
}

// RecordingSession owns a fixed rate, fixed size video stream. It is opened
// once, written once per frame and closed once.
type RecordingSession struct {
	params RecordingParams
	opener WriterOpener
	writer FrameWriter
	closed bool
	frames int
}

// NewRecordingSession uses gocv.VideoWriterFile when opener is nil
func NewRecordingSession(params RecordingParams, opener WriterOpener) *RecordingSession {
	if opener == nil {
		opener = VideoFileOpener
	}
	return &RecordingSession{
		params: params,
		opener: opener,
	}
}

// VideoFileOpener writes a color video file through OpenCV
func VideoFileOpener(params RecordingParams) (FrameWriter, error) {
	writer, err := gocv.VideoWriterFile(params.Path, params.Codec, params.FPS, params.Width, params.Height, true)
	if err != nil {
		return nil, err
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, xerrors.Errorf("video writer for %s with codec %s did not open", params.Path, params.Codec)
	}
	return writer, nil
}

func (r *RecordingSession) Open() error {
	if r.closed {
		return xerrors.Errorf("reopening %s: %w", r.params.Path, ErrRecordingNotOpen)
	}
	if r.writer != nil {
		return nil
	}

	writer, err := r.opener(r.params)
	if err != nil {
		return xerrors.Errorf("error opening recording %s: %w", r.params.Path, err)
	}
	r.writer = writer

	lgr.Logger.Info("recording opened",
		slog.String("path", r.params.Path),
		slog.String("codec", r.params.Codec),
		slog.Float64("fps", r.params.FPS),
		slog.Int("width", r.params.Width),
		slog.Int("height", r.params.Height),
	)
	return nil
}

// Write rejects frames whose size differs from the configured output size
func (r *RecordingSession) Write(frame gocv.Mat) error {
	if r.writer == nil || r.closed {
		return ErrRecordingNotOpen
	}
	if frame.Cols() != r.params.Width || frame.Rows() != r.params.Height {
		return xerrors.Errorf("frame %dx%d, recording %dx%d: %w", frame.Cols(), frame.Rows(), r.params.Width, r.params.Height, ErrFrameSize)
	}

	if err := r.writer.Write(frame); err != nil {
		return xerrors.Errorf("error writing frame %d: %w", r.frames, err)
	}
	r.frames++
	return nil
}

// Close finalizes the stream. Calling it again is a no-op.
func (r *RecordingSession) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if r.writer == nil {
		return nil
	}

	lgr.Logger.Info("recording closed",
		slog.String("path", r.params.Path),
		slog.Int("frames", r.frames),
	)
	return r.writer.Close()
}

func (r *RecordingSession) IsOpen() bool {
	return r.writer != nil && !r.closed
}

// Frames is the number of frames written so far
func (r *RecordingSession) Frames() int {
	return r.frames
}
