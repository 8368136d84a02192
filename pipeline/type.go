package pipeline

import (
	"time"

	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/data"
	"github.com/khaledhikmat/vs-detect/service/detector"
	"gocv.io/x/gocv"
)

type FrameData struct {
	Mat       gocv.Mat
	Name      string
	Index     int
	Timestamp time.Time
}

// ServicesFactory carries the services a mode processor hands to the pipeline
type ServicesFactory struct {
	CfgSvc      config.IService
	DataSvc     data.IService
	DetectorSvc detector.IService
}
