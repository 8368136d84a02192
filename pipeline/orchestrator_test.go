package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/data"
	"github.com/khaledhikmat/vs-detect/service/detector"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

type runFixture struct {
	params   config.Params
	svcs     ServicesFactory
	detector *detector.FakeService
	loaded   []string
	writer   *fakeWriter
	display  *fakeDisplay
}

// personTable holds two overlapping person proposals on a caviar sized frame
func personTable(t *testing.T) model.ClassScoreTable {
	table, err := model.NewClassScoreTable(
		mat.NewDense(2, 2, []float64{
			0.05, 0.95,
			0.1, 0.9,
		}),
		mat.NewDense(2, 8, []float64{
			0, 0, 0, 0, 100, 50, 150, 200,
			0, 0, 0, 0, 102, 52, 152, 198,
		}),
	)
	require.NoError(t, err)
	return table
}

func newRunFixture(t *testing.T, frames int, modify func(p *config.Params)) *runFixture {
	p := config.DefaultParams()
	p.SourceFolder = t.TempDir()
	p.RunsFolder = filepath.Join(t.TempDir(), "runs")
	p.Record = true
	if modify != nil {
		modify(&p)
	}

	for i := frames; i >= 1; i-- {
		require.NoError(t, os.WriteFile(filepath.Join(p.SourceFolder, fmt.Sprintf("%d.png", i)), nil, 0644))
	}

	cfgSvc := config.NewStatic(p)
	fake := detector.NewFake(cfgSvc.GetNetwork().Classes, personTable(t))

	return &runFixture{
		params: p,
		svcs: ServicesFactory{
			CfgSvc:      cfgSvc,
			DataSvc:     data.NewFilesDB(cfgSvc),
			DetectorSvc: fake,
		},
		detector: fake,
		writer:   &fakeWriter{},
		display:  &fakeDisplay{},
	}
}

func (f *runFixture) orchestrator(t *testing.T) *Orchestrator {
	src, err := NewFrameSource(f.params.SourceFolder, f.params.ImageExtension, func(path string) (gocv.Mat, error) {
		f.loaded = append(f.loaded, filepath.Base(path))
		return blankFrame(f.params.RecordingHeight, f.params.RecordingWidth), nil
	})
	require.NoError(t, err)

	sink := NewSink(f.display, testRecording(f.writer), time.Millisecond)
	o, err := NewOrchestrator(f.svcs, src, sink, "demo")
	require.NoError(t, err)
	return o
}

func TestRunCancelledByUser(t *testing.T) {
	f := newRunFixture(t, 5, nil)
	f.display.keys = []int{noKey, keyEsc}
	o := f.orchestrator(t)

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, stats.Cancelled)
	require.Equal(t, 2, stats.Frames)
	require.Equal(t, 2, stats.Detections)
	require.Equal(t, Terminated, o.State())

	require.Equal(t, []string{"1.png", "2.png"}, f.loaded)
	// two warm up passes plus one per loaded frame
	require.Equal(t, 4, f.detector.Calls())

	require.Equal(t, 2, f.writer.writes)
	require.Equal(t, 1, f.writer.closes)
	require.Equal(t, 1, f.display.closes)

	frames, err := f.svcs.DataSvc.RetrieveFrameStats(stats.RunID)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, 2, frames[0].Proposals)
	require.Equal(t, 1, frames[0].Detections)
	require.Equal(t, float32(0.95), frames[0].TopScore)
	require.True(t, frames[1].Recorded)

	_, err = os.Stat(filepath.Join(f.params.RunsFolder, f.params.DetectionLogFile))
	require.NoError(t, err)
}

func TestRunToCompletion(t *testing.T) {
	f := newRunFixture(t, 5, nil)
	o := f.orchestrator(t)

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, stats.Cancelled)
	require.Equal(t, 5, stats.Frames)
	require.Equal(t, []string{"1.png", "2.png", "3.png", "4.png", "5.png"}, f.loaded)
	require.Equal(t, 7, f.detector.Calls())
	require.Equal(t, 5, f.writer.writes)
	require.Equal(t, 1, f.writer.closes)
}

func TestRunContextCancelled(t *testing.T) {
	f := newRunFixture(t, 3, nil)
	o := f.orchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := o.Run(ctx)
	require.NoError(t, err)
	require.True(t, stats.Cancelled)
	require.Zero(t, stats.Frames)
	require.Empty(t, f.loaded)
	require.Equal(t, 1, f.writer.closes)
}

func TestRunDetectorFailureIsFatal(t *testing.T) {
	f := newRunFixture(t, 3, func(p *config.Params) {
		p.WarmupIterations = 0
	})
	down := errors.New("detector down")
	f.detector.Err = down
	o := f.orchestrator(t)

	stats, err := o.Run(context.Background())
	require.ErrorIs(t, err, down)
	require.ErrorContains(t, err, "1.png")
	require.Zero(t, stats.Frames)
	require.Equal(t, []string{"1.png"}, f.loaded)
	require.Equal(t, 1, f.writer.closes)
	require.Equal(t, 1, f.display.closes)
}

func TestRunSkipsFailedFrames(t *testing.T) {
	f := newRunFixture(t, 3, func(p *config.Params) {
		p.WarmupIterations = 0
		p.SkipFailedFrames = true
	})
	f.detector.Err = errors.New("detector down")
	o := f.orchestrator(t)

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.SkippedFrames)
	require.Zero(t, stats.Frames)
	require.Len(t, f.loaded, 3)

	_, err = os.Stat(filepath.Join(f.params.RunsFolder, "errors.json"))
	require.NoError(t, err)
}

func TestRunWarmupFailure(t *testing.T) {
	f := newRunFixture(t, 3, nil)
	f.detector.Err = errors.New("no gpu")
	o := f.orchestrator(t)

	_, err := o.Run(context.Background())
	require.ErrorContains(t, err, "warming up")
	require.Empty(t, f.loaded)
	require.Zero(t, f.writer.closes)
	require.Equal(t, 1, f.display.closes)
}

func TestRunMalformedDetectorOutput(t *testing.T) {
	f := newRunFixture(t, 2, func(p *config.Params) {
		p.SkipFailedFrames = true
	})
	table, err := model.NewClassScoreTable(mat.NewDense(1, 1, []float64{1}), mat.NewDense(1, 4, nil))
	require.NoError(t, err)
	f.svcs.DetectorSvc = detector.NewFake([]string{"__background__"}, table)
	o := f.orchestrator(t)

	_, err = o.Run(context.Background())
	require.ErrorIs(t, err, model.ErrClassOutOfRange)
	require.Len(t, f.loaded, 1)
}

func TestStateNames(t *testing.T) {
	require.Equal(t, "presenting", Presenting.String())
	require.Equal(t, "cancelled", Cancelled.String())
	require.Equal(t, "state(42)", State(42).String())
	require.Equal(t, "cancelRequested", CancelRequested.String())
}
