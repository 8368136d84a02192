package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/data"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory) error

// newRun wires a frame source and a sink around the configured services
func newRun(svcs pipeline.ServicesFactory, display pipeline.Display, recording *pipeline.RecordingSession, mode string) (*pipeline.Orchestrator, error) {
	cfgSvc := svcs.CfgSvc

	source, err := pipeline.NewFrameSource(cfgSvc.GetSourceFolder(), cfgSvc.GetImageExtension(), pipeline.IMReadLoader)
	if err != nil {
		return nil, err
	}

	lgr.Logger.Info("frame source ready",
		slog.String("folder", cfgSvc.GetSourceFolder()),
		slog.String("extension", cfgSvc.GetImageExtension()),
		slog.Int("frames", source.Len()),
	)

	sink := pipeline.NewSink(display, recording, cfgSvc.GetKeyWait())
	return pipeline.NewOrchestrator(svcs, source, sink, mode)
}

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.RunStats:
		procRunStats(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procRunStats(datasvc data.IService, stats model.RunStats) {
	err := datasvc.NewRunStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store run stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
