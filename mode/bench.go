package mode

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// summaryOut is where Bench prints its timing table
var summaryOut io.Writer = os.Stdout

// Bench times the detector over the source folder without a window or a
// recording and prints a summary of the per frame detection times.
func Bench(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	orchestrator, err := newRun(svcs, pipeline.NewHeadlessDisplay(), nil, "bench")
	if err != nil {
		procError(svcs.DataSvc, model.GenError("bench_mode", err, nil, "error preparing bench run"))
		return err
	}

	stats, err := orchestrator.Run(canxCtx)
	procStats(svcs.DataSvc, stats)
	if err != nil {
		procError(svcs.DataSvc, model.GenError("bench_mode", err, map[string]interface{}{"runId": stats.RunID}, "bench run aborted"))
		return err
	}

	frames, err := svcs.DataSvc.RetrieveFrameStats(stats.RunID)
	if err != nil {
		return err
	}

	printSummary(summaryOut, stats, frames)
	return nil
}

type timingSummary struct {
	Mean, StdDev, Min, Max float64
}

func summarize(frames []model.FrameStats) timingSummary {
	if len(frames) == 0 {
		return timingSummary{}
	}

	times := make([]float64, len(frames))
	for i, f := range frames {
		times[i] = f.DetectTime
	}

	mean, std := stat.MeanStdDev(times, nil)
	if len(times) == 1 {
		std = 0
	}
	return timingSummary{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(times),
		Max:    floats.Max(times),
	}
}

func printSummary(w io.Writer, stats model.RunStats, frames []model.FrameStats) {
	title := color.New(color.FgCyan, color.Bold)
	value := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)

	s := summarize(frames)

	title.Fprintf(w, "bench %s (%s, class %s)\n", stats.RunID, stats.Network, stats.TargetClass)
	fmt.Fprintf(w, "  frames      %s\n", value.Sprint(stats.Frames))
	fmt.Fprintf(w, "  detections  %s\n", value.Sprint(stats.Detections))
	fmt.Fprintf(w, "  detect mean %s\n", value.Sprintf("%.3fs", s.Mean))
	fmt.Fprintf(w, "  detect std  %s\n", value.Sprintf("%.3fs", s.StdDev))
	fmt.Fprintf(w, "  detect min  %s\n", value.Sprintf("%.3fs", s.Min))
	fmt.Fprintf(w, "  detect max  %s\n", value.Sprintf("%.3fs", s.Max))
	if stats.SkippedFrames > 0 {
		fmt.Fprintf(w, "  skipped     %s\n", warn.Sprint(stats.SkippedFrames))
	}
	if stats.Cancelled {
		warn.Fprintln(w, "  run cancelled before the source was exhausted")
	}
}
