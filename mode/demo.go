package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

// Demo shows every processed frame in the result window and optionally
// records it. The user stops it early with Esc or q.
func Demo(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	cfgSvc := svcs.CfgSvc

	var display pipeline.Display
	if cfgSvc.GetDisplayEnabled() {
		display = pipeline.NewWindowDisplay(cfgSvc.GetWindowTitle())
	} else {
		display = pipeline.NewHeadlessDisplay()
	}

	var recording *pipeline.RecordingSession
	if cfgSvc.GetRecordEnabled() {
		width, height := cfgSvc.GetRecordingSize()
		recording = pipeline.NewRecordingSession(pipeline.RecordingParams{
			Path:   cfgSvc.GetRecordingPath(),
			Codec:  cfgSvc.GetRecordingCodec(),
			FPS:    cfgSvc.GetRecordingFPS(),
			Width:  width,
			Height: height,
		}, pipeline.VideoFileOpener)
	}

	orchestrator, err := newRun(svcs, display, recording, "demo")
	if err != nil {
		display.Close()
		procError(svcs.DataSvc, model.GenError("demo_mode", err, nil, "error preparing demo run"))
		return err
	}

	stats, err := orchestrator.Run(canxCtx)
	procStats(svcs.DataSvc, stats)
	if err != nil {
		procError(svcs.DataSvc, model.GenError("demo_mode", err, map[string]interface{}{"runId": stats.RunID}, "demo run aborted"))
		return err
	}

	lgr.Logger.Info("demo finished",
		slog.String("runID", stats.RunID),
		slog.Int("frames", stats.Frames),
		slog.Int("detections", stats.Detections),
		slog.Bool("cancelled", stats.Cancelled),
		slog.Int("recordFailures", stats.RecordFailures),
	)
	return nil
}
