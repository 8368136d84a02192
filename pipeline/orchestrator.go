package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/lgr"
	"github.com/natefinch/lumberjack"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

type State int

const (
	Idle State = iota
	Loading
	Detecting
	Filtering
	Rendering
	Presenting
	Terminated
	Cancelled
)

var stateNames = map[State]string{
	Idle:       "idle",
	Loading:    "loading",
	Detecting:  "detecting",
	Filtering:  "filtering",
	Rendering:  "rendering",
	Presenting: "presenting",
	Terminated: "terminated",
	Cancelled:  "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	warmupRows  = 300
	warmupCols  = 500
	warmupValue = 128
)

var tracer = otel.Tracer("github.com/khaledhikmat/vs-detect/pipeline")

// Orchestrator drives frames one at a time through detect, filter, render and
// present. Cancellation is only observed between frames.
type Orchestrator struct {
	svcs       ServicesFactory
	source     *FrameSource
	sink       *Sink
	style      Style
	mode       string
	classIndex int
	state      State
	detLogger  *lumberjack.Logger
}

func NewOrchestrator(svcs ServicesFactory, source *FrameSource, sink *Sink, mode string) (*Orchestrator, error) {
	classIndex, err := svcs.CfgSvc.GetTargetClassIndex()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		svcs:       svcs,
		source:     source,
		sink:       sink,
		style:      DefaultStyle(),
		mode:       mode,
		classIndex: classIndex,
		state:      Idle,
	}

	if fn := svcs.CfgSvc.GetDetectionLogFile(); fn != "" {
		o.detLogger = &lumberjack.Logger{
			Filename:   filepath.Join(svcs.CfgSvc.GetRunsFolder(), fn),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7,    // days
			Compress:   true, // compress old logs
		}
	}

	return o, nil
}

func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) setState(s State) {
	lgr.Logger.Debug("orchestrator state",
		slog.String("from", o.state.String()),
		slog.String("to", s.String()),
	)
	o.state = s
}

// Warmup runs the detector on a flat grey frame so that the first real frame
// is not charged with the network's cold start.
func (o *Orchestrator) Warmup() error {
	iterations := o.svcs.CfgSvc.GetWarmupIterations()
	if iterations <= 0 {
		return nil
	}

	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(warmupValue, warmupValue, warmupValue, 0), warmupRows, warmupCols, gocv.MatTypeCV8UC3)
	defer blank.Close()

	begin := time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := o.svcs.DetectorSvc.Detect(blank, nil); err != nil {
			return xerrors.Errorf("error warming up detector: %w", err)
		}
	}

	lgr.Logger.Info("detector warmed up",
		slog.Int("iterations", iterations),
		slog.Duration("elapsed", time.Since(begin)),
	)
	return nil
}

// Run processes the source folder until it is exhausted, the user cancels or
// ctx is done. The sink is closed on every exit path.
func (o *Orchestrator) Run(ctx context.Context) (model.RunStats, error) {
	network := o.svcs.CfgSvc.GetNetwork()
	stats := model.RunStats{
		RunID:       uuid.NewString(),
		Mode:        o.mode,
		Network:     network.Name,
		TargetClass: o.svcs.CfgSvc.GetTargetClass(),
	}

	beginTime := time.Now()
	var totalDetectTime time.Duration

	defer func() {
		if err := o.sink.Close(); err != nil {
			lgr.Logger.Warn("error closing sink", slog.Any("error", err))
		}
		if o.detLogger != nil {
			o.detLogger.Close()
		}
	}()

	finish := func() model.RunStats {
		stats.RecordFailures = o.sink.RecordFailures()
		stats.Uptime = int64(time.Since(beginTime).Seconds())
		if stats.Frames > 0 {
			stats.AvgDetectTime = totalDetectTime.Seconds() / float64(stats.Frames)
		}
		return stats
	}

	lgr.Logger.Info("run starting",
		slog.String("runID", stats.RunID),
		slog.String("mode", o.mode),
		slog.String("network", network.Name),
		slog.String("class", stats.TargetClass),
		slog.Int("classIndex", o.classIndex),
		slog.Int("frames", o.source.Len()),
	)

	if err := o.Warmup(); err != nil {
		o.setState(Terminated)
		return finish(), err
	}

	o.sink.Open()
	o.setState(Idle)

	for {
		if ctx.Err() != nil {
			lgr.Logger.Info("run context cancelled", slog.String("runID", stats.RunID))
			stats.Cancelled = true
			o.setState(Cancelled)
			break
		}

		o.setState(Loading)
		frame, ok, err := o.source.Next()
		if err != nil {
			o.setState(Terminated)
			return finish(), xerrors.Errorf("error loading frame: %w", err)
		}
		if !ok {
			break
		}

		signal, frameStats, err := o.processFrame(ctx, stats.RunID, frame)
		frame.Mat.Close()
		if err != nil {
			if !o.skippable(err) {
				o.setState(Terminated)
				return finish(), err
			}

			stats.SkippedFrames++
			lgr.Logger.Warn("skipping frame",
				slog.String("frame", frame.Name),
				slog.Any("error", err),
			)
			o.procError(model.GenError("orchestrator", err, map[string]interface{}{"frame": frame.Name}, "error detecting frame %s", frame.Name))
			continue
		}

		stats.Frames++
		stats.Detections += frameStats.Detections
		totalDetectTime += time.Duration(frameStats.DetectTime * float64(time.Second))
		o.procFrameStats(frameStats)

		if signal == CancelRequested {
			stats.Cancelled = true
			o.setState(Cancelled)
			break
		}
	}

	o.setState(Terminated)
	return finish(), nil
}

func (o *Orchestrator) processFrame(ctx context.Context, runID string, frame FrameData) (UserSignal, model.FrameStats, error) {
	frameStats := model.FrameStats{
		RunID: runID,
		Frame: frame.Name,
		Index: frame.Index,
	}

	_, span := tracer.Start(ctx, "frame", trace.WithAttributes(
		attribute.String("frame", frame.Name),
		attribute.Int("index", frame.Index),
	))
	defer span.End()

	o.setState(Detecting)
	begin := time.Now()
	table, err := o.svcs.DetectorSvc.Detect(frame.Mat, nil)
	elapsed := time.Since(begin)
	if err != nil {
		span.RecordError(err)
		return Continue, frameStats, &detectError{frame: frame.Name, err: err}
	}

	frameStats.Proposals = table.Proposals()
	frameStats.DetectTime = elapsed.Seconds()
	span.SetAttributes(attribute.Int("proposals", frameStats.Proposals))
	lgr.Logger.Info(fmt.Sprintf("detection took %.3fs for %d object proposals", elapsed.Seconds(), frameStats.Proposals),
		slog.String("frame", frame.Name),
	)

	o.setState(Filtering)
	scores, boxes, err := table.Column(o.classIndex)
	if err != nil {
		return Continue, frameStats, xerrors.Errorf("error extracting class %d of frame %s: %w", o.classIndex, frame.Name, err)
	}
	batch, err := Filter(scores, boxes, o.svcs.CfgSvc.GetConfidenceThreshold(), o.svcs.CfgSvc.GetNMSThreshold())
	if err != nil {
		return Continue, frameStats, xerrors.Errorf("error filtering frame %s: %w", frame.Name, err)
	}
	frameStats.Detections = len(batch)
	frameStats.TopScore = batch.TopScore()
	o.logDetections(runID, frame.Name, batch)

	o.setState(Rendering)
	rendered := Render(frame.Mat, batch, o.style)
	defer rendered.Close()

	o.setState(Presenting)
	signal := o.sink.Show(rendered)
	if o.sink.Recording() {
		failures := o.sink.RecordFailures()
		o.sink.Record(rendered)
		frameStats.Recorded = o.sink.RecordFailures() == failures
	}

	return signal, frameStats, nil
}

type detectError struct {
	frame string
	err   error
}

func (e *detectError) Error() string {
	return fmt.Sprintf("error detecting frame %s: %v", e.frame, e.err)
}

func (e *detectError) Unwrap() error {
	return e.err
}

// skippable reports whether err is a detector failure the skip policy covers.
// Malformed detector output stays fatal.
func (o *Orchestrator) skippable(err error) bool {
	if !o.svcs.CfgSvc.GetSkipFailedFrames() {
		return false
	}
	var de *detectError
	return errors.As(err, &de) && !errors.Is(err, model.ErrShapeMismatch)
}

func (o *Orchestrator) procFrameStats(stats model.FrameStats) {
	if o.svcs.DataSvc == nil {
		return
	}
	if err := o.svcs.DataSvc.NewFrameStats(stats); err != nil {
		lgr.Logger.Error(
			"failed to store frame stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) procError(err interface{}) {
	if o.svcs.DataSvc == nil {
		return
	}
	if errTemp := o.svcs.DataSvc.NewError(err); errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}

type loggedDetection struct {
	Score float32         `json:"score"`
	Rect  image.Rectangle `json:"rect"`
}

func (o *Orchestrator) logDetections(runID, frame string, batch model.DetectionBatch) {
	if o.detLogger == nil || len(batch) == 0 {
		return
	}

	detections := make([]loggedDetection, 0, len(batch))
	for _, d := range batch {
		detections = append(detections, loggedDetection{
			Score: d.Score,
			Rect:  d.Box.Rect(),
		})
	}

	entry := map[string]interface{}{
		"time":       time.Now().Format(time.RFC3339),
		"runId":      runID,
		"frame":      frame,
		"class":      o.svcs.CfgSvc.GetTargetClass(),
		"detections": detections,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		lgr.Logger.Error("error marshaling detections", slog.Any("error", err))
		return
	}

	if _, err := o.detLogger.Write(append(jsonData, '\n')); err != nil {
		lgr.Logger.Error("error writing to detection log file", slog.Any("error", err))
	}
}
