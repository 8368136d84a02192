package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/xerrors"
)

// Params holds every recognized option. Zero values are not meaningful, start
// from DefaultParams.
type Params struct {
	ShutdownTime        int
	DataFolder          string
	ModelsFolder        string
	SourceFolder        string
	ImageExtension      string
	RunsFolder          string
	DetectionLogFile    string
	Network             string
	TargetClass         string
	ConfidenceThreshold float32
	NMSThreshold        float32
	CPU                 bool
	GPUID               int
	Record              bool
	RecordingPath       string
	RecordingCodec      string
	RecordingFPS        float64
	RecordingWidth      int
	RecordingHeight     int
	DisplayEnabled      bool
	WindowTitle         string
	KeyWait             time.Duration
	WarmupIterations    int
	SkipFailedFrames    bool
	DryRun              bool
}

// DefaultParams mirrors the surveillance demo: caviar network, person class,
// a very permissive 0.01 confidence for visibility and 0.3 NMS overlap.
func DefaultParams() Params {
	return Params{
		ShutdownTime:        5,
		DataFolder:          "./data",
		ModelsFolder:        "./models",
		ImageExtension:      ".png",
		RunsFolder:          "./runs",
		DetectionLogFile:    "detections.log",
		Network:             "caviar",
		TargetClass:         "person",
		ConfidenceThreshold: 0.01,
		NMSThreshold:        0.3,
		GPUID:               0,
		RecordingPath:       "output.avi",
		RecordingCodec:      "H264",
		RecordingFPS:        25,
		RecordingWidth:      384,
		RecordingHeight:     288,
		DisplayEnabled:      true,
		WindowTitle:         "result",
		KeyWait:             3 * time.Millisecond,
		WarmupIterations:    2,
	}
}

// FromEnv overlays environment variables on top of p
func FromEnv(p Params) (Params, error) {
	var err error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			*dst, err = cast.ToIntE(v)
			if err != nil {
				err = xerrors.Errorf("%s: %w", key, err)
			}
		}
	}
	flt := func(key string, dst *float32) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			*dst, err = cast.ToFloat32E(v)
			if err != nil {
				err = xerrors.Errorf("%s: %w", key, err)
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			*dst, err = cast.ToBoolE(v)
			if err != nil {
				err = xerrors.Errorf("%s: %w", key, err)
			}
		}
	}

	num("SHUTDOWN_TIME", &p.ShutdownTime)
	str("DATA_DIR", &p.DataFolder)
	str("MODELS_DIR", &p.ModelsFolder)
	str("SOURCE_DIR", &p.SourceFolder)
	str("IMAGE_EXT", &p.ImageExtension)
	str("RUNS_DIR", &p.RunsFolder)
	str("DETECTION_LOG", &p.DetectionLogFile)
	str("NET", &p.Network)
	str("TARGET_CLASS", &p.TargetClass)
	flt("CONF_THRESH", &p.ConfidenceThreshold)
	flt("NMS_THRESH", &p.NMSThreshold)
	flag("CPU_MODE", &p.CPU)
	num("GPU_ID", &p.GPUID)
	flag("RECORD", &p.Record)
	str("RECORDING_FILE", &p.RecordingPath)
	str("RECORDING_CODEC", &p.RecordingCodec)
	num("RECORDING_WIDTH", &p.RecordingWidth)
	num("RECORDING_HEIGHT", &p.RecordingHeight)
	flag("DISPLAY_ENABLED", &p.DisplayEnabled)
	str("WINDOW_TITLE", &p.WindowTitle)
	num("WARMUP_ITERATIONS", &p.WarmupIterations)
	flag("SKIP_FAILED_FRAMES", &p.SkipFailedFrames)
	flag("DRY_RUN", &p.DryRun)

	if v, ok := os.LookupEnv("RECORDING_FPS"); ok && err == nil {
		p.RecordingFPS, err = cast.ToFloat64E(v)
		if err != nil {
			err = xerrors.Errorf("RECORDING_FPS: %w", err)
		}
	}
	if v, ok := os.LookupEnv("KEY_WAIT"); ok && err == nil {
		p.KeyWait, err = cast.ToDurationE(v)
		if err != nil {
			err = xerrors.Errorf("KEY_WAIT: %w", err)
		}
	}

	return p, err
}

type staticService struct {
	params Params
}

func NewStatic(p Params) IService {
	return &staticService{
		params: p,
	}
}

func (svc *staticService) GetModeMaxShutdownTime() int {
	return svc.params.ShutdownTime
}

func (svc *staticService) GetDataFolder() string {
	return svc.params.DataFolder
}

func (svc *staticService) GetModelsFolder() string {
	return svc.params.ModelsFolder
}

func (svc *staticService) GetSourceFolder() string {
	if svc.params.SourceFolder != "" {
		return svc.params.SourceFolder
	}
	return filepath.Join(svc.params.DataFolder, "surveillance")
}

func (svc *staticService) GetImageExtension() string {
	return svc.params.ImageExtension
}

func (svc *staticService) GetRunsFolder() string {
	return svc.params.RunsFolder
}

func (svc *staticService) GetDetectionLogFile() string {
	return svc.params.DetectionLogFile
}

func (svc *staticService) GetNetwork() Network {
	// Validate reports unknown names, callers get a named but empty network
	network, err := ResolveNetwork(svc.params.Network, svc.params.ModelsFolder, svc.params.DataFolder)
	if err != nil {
		return Network{Name: svc.params.Network}
	}
	return network
}

func (svc *staticService) GetTargetClass() string {
	return svc.params.TargetClass
}

func (svc *staticService) GetTargetClassIndex() (int, error) {
	return svc.GetNetwork().ClassIndex(svc.params.TargetClass)
}

func (svc *staticService) GetConfidenceThreshold() float32 {
	return svc.params.ConfidenceThreshold
}

func (svc *staticService) GetNMSThreshold() float32 {
	return svc.params.NMSThreshold
}

func (svc *staticService) GetDevice() Device {
	return Device{
		CPU:   svc.params.CPU,
		GPUID: svc.params.GPUID,
	}
}

func (svc *staticService) GetRecordEnabled() bool {
	return svc.params.Record
}

func (svc *staticService) GetRecordingPath() string {
	return svc.params.RecordingPath
}

func (svc *staticService) GetRecordingCodec() string {
	return svc.params.RecordingCodec
}

func (svc *staticService) GetRecordingFPS() float64 {
	return svc.params.RecordingFPS
}

func (svc *staticService) GetRecordingSize() (int, int) {
	return svc.params.RecordingWidth, svc.params.RecordingHeight
}

func (svc *staticService) GetDisplayEnabled() bool {
	return svc.params.DisplayEnabled
}

func (svc *staticService) GetWindowTitle() string {
	return svc.params.WindowTitle
}

func (svc *staticService) GetKeyWait() time.Duration {
	return svc.params.KeyWait
}

func (svc *staticService) GetWarmupIterations() int {
	return svc.params.WarmupIterations
}

func (svc *staticService) GetSkipFailedFrames() bool {
	return svc.params.SkipFailedFrames
}

func (svc *staticService) GetDryRun() bool {
	return svc.params.DryRun
}

// Validate checks option ranges. It does not touch the filesystem.
func (svc *staticService) Validate() error {
	p := svc.params

	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return xerrors.Errorf("confidence threshold %v outside [0,1]", p.ConfidenceThreshold)
	}
	if p.NMSThreshold < 0 || p.NMSThreshold > 1 {
		return xerrors.Errorf("nms threshold %v outside [0,1]", p.NMSThreshold)
	}

	if _, err := ResolveNetwork(p.Network, p.ModelsFolder, p.DataFolder); err != nil {
		return err
	}
	if _, err := svc.GetTargetClassIndex(); err != nil {
		return err
	}

	// WaitKey(0) blocks forever
	if p.KeyWait < time.Millisecond {
		return xerrors.Errorf("key wait %v must be at least 1ms", p.KeyWait)
	}

	if p.Record {
		if p.RecordingFPS <= 0 {
			return xerrors.Errorf("recording fps %v must be positive", p.RecordingFPS)
		}
		if p.RecordingWidth <= 0 || p.RecordingHeight <= 0 {
			return xerrors.Errorf("recording size %dx%d must be positive", p.RecordingWidth, p.RecordingHeight)
		}
		if len(p.RecordingCodec) != 4 {
			return xerrors.Errorf("recording codec %q must be a fourcc", p.RecordingCodec)
		}
	}

	if p.WarmupIterations < 0 {
		return xerrors.Errorf("warmup iterations %d must not be negative", p.WarmupIterations)
	}

	return nil
}
