package config

import "time"

// Device selects where the detector network runs
type Device struct {
	CPU   bool `json:"cpu"`
	GPUID int  `json:"gpuId"`
}

// Network describes a pretrained detector and the class vocabulary its output
// columns are aligned with
type Network struct {
	Name       string   `json:"name"`
	Prototxt   string   `json:"prototxt"`
	CaffeModel string   `json:"caffeModel"`
	Classes    []string `json:"classes"`
}

type IService interface {
	GetModeMaxShutdownTime() int
	GetDataFolder() string
	GetModelsFolder() string
	GetSourceFolder() string
	GetImageExtension() string
	GetRunsFolder() string
	GetDetectionLogFile() string
	GetNetwork() Network
	GetTargetClass() string
	GetTargetClassIndex() (int, error)
	GetConfidenceThreshold() float32
	GetNMSThreshold() float32
	GetDevice() Device
	GetRecordEnabled() bool
	GetRecordingPath() string
	GetRecordingCodec() string
	GetRecordingFPS() float64
	GetRecordingSize() (int, int)
	GetDisplayEnabled() bool
	GetWindowTitle() string
	GetKeyWait() time.Duration
	GetWarmupIterations() int
	GetSkipFailedFrames() bool
	GetDryRun() bool
	Validate() error
}
