package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/mode"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/data"
	"github.com/khaledhikmat/vs-detect/service/detector"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

var modeProcessors = map[string]mode.Processor{
	"demo":  mode.Demo,
	"bench": mode.Bench,
}

func init() {
	// HighGUI windows must be created and pumped from the main OS thread
	runtime.LockOSThread()
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil {
			lgr.Logger.Warn("no .env file loaded", slog.Any("error", err))
		}
	}

	params, err := config.FromEnv(config.DefaultParams())
	if err != nil {
		lgr.Logger.Error("invalid environment", slog.Any("error", err))
		return 1
	}

	params, modeType, err := parseArgs(os.Args, params)
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return 2
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		return 2
	}

	// Config service
	cfgSvc := config.NewStatic(params)
	if err := cfgSvc.Validate(); err != nil {
		lgr.Logger.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	// Detector service
	detectorSvc, err := newDetector(cfgSvc)
	if err != nil {
		lgr.Logger.Error("error loading detector", slog.Any("error", err))
		return 1
	}
	defer detectorSvc.Close()

	svcs := pipeline.ServicesFactory{
		CfgSvc:      cfgSvc,
		DataSvc:     data.NewFilesDB(cfgSvc),
		DetectorSvc: detectorSvc,
	}

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan struct{})
	defer close(done)
	go watchSignals(canxFn, sigChan, done, time.Duration(cfgSvc.GetModeMaxShutdownTime())*time.Second, os.Exit)

	// The mode processor owns the display, so it stays on the main goroutine
	return exitCode(modeProc(canxCtx, svcs))
}

// watchSignals cancels the run on the first signal. The pipeline only notices
// between frames, so a processor still busy after grace is ended with exit(1).
func watchSignals(cancel context.CancelFunc, sigChan <-chan os.Signal, done <-chan struct{}, grace time.Duration, exit func(int)) {
	select {
	case sig := <-sigChan:
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		cancel()
	case <-done:
		return
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		lgr.Logger.Warn(
			"shutdown waiting period expired. Exiting now",
			slog.Duration("period", grace),
		)
		exit(1)
	}
}

// newDetector picks the scripted detector for dry runs, the Caffe network otherwise
func newDetector(cfgSvc config.IService) (detector.IService, error) {
	network := cfgSvc.GetNetwork()
	if cfgSvc.GetDryRun() {
		lgr.Logger.Info("dry run, no network loaded", slog.String("network", network.Name))
		return detector.NewFake(network.Classes), nil
	}
	return detector.NewCaffe(network, cfgSvc.GetDevice())
}

func exitCode(err error) int {
	if err != nil {
		lgr.Logger.Error(
			"mode processor exited",
			slog.Any("error", xerrors.New(err.Error())),
		)
		return 1
	}
	return 0
}

// parseArgs overlays the command line on top of p and returns the selected mode
func parseArgs(args []string, p config.Params) (config.Params, string, error) {
	parser := argparse.NewParser("vs-detect", "Detect people in a folder of surveillance frames")
	gpuID := parser.Int("", "gpu", &argparse.Options{Help: "GPU device id to use", Default: p.GPUID})
	cpuMode := parser.Flag("", "cpu", &argparse.Options{Help: "Use CPU mode (overrides --gpu)", Default: p.CPU})
	network := parser.Selector("", "net", config.NetworkNames(), &argparse.Options{Help: "Network to use", Default: p.Network})
	record := parser.Flag("", "record", &argparse.Options{Help: "Record the rendered frames to a video file", Default: p.Record})
	modeType := parser.Selector("", "mode", []string{"demo", "bench"}, &argparse.Options{Help: "Run mode", Default: "demo"})
	source := parser.String("", "source", &argparse.Options{Help: "Folder of input frames", Default: p.SourceFolder})
	class := parser.String("", "class", &argparse.Options{Help: "Target class name", Default: p.TargetClass})
	conf := parser.Float("", "conf", &argparse.Options{Help: "Confidence threshold", Default: float64(p.ConfidenceThreshold)})
	nms := parser.Float("", "nms", &argparse.Options{Help: "NMS overlap threshold", Default: float64(p.NMSThreshold)})
	dryRun := parser.Flag("", "dry-run", &argparse.Options{Help: "Replace the network with a detector that finds nothing", Default: p.DryRun})

	if err := parser.Parse(args); err != nil {
		return p, "", xerrors.New(parser.Usage(err))
	}

	p.GPUID = *gpuID
	p.CPU = *cpuMode
	p.Network = *network
	p.Record = *record
	p.SourceFolder = *source
	p.TargetClass = *class
	p.ConfidenceThreshold = float32(*conf)
	p.NMSThreshold = float32(*nms)
	p.DryRun = *dryRun

	return p, *modeType, nil
}
