package model

import (
	"fmt"

	xerrs "github.com/mdobak/go-xerrors"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s: %s", e.Processor, e.Message)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: xerrs.Sprint(xerrs.New(proc)),
		Misc:       misc,
	}
}

// FrameStats is emitted once per processed frame
type FrameStats struct {
	RunID      string  `json:"runId"`
	Frame      string  `json:"frame"`
	Index      int     `json:"index"`
	Proposals  int     `json:"proposals"`
	Detections int     `json:"detections"`
	DetectTime float64 `json:"detectTime"` // seconds
	TopScore   float32 `json:"topScore"`
	Recorded   bool    `json:"recorded"`
	Timestamp  int64   `json:"timestamp"`
}

// RunStats summarizes a whole pass over the source folder
type RunStats struct {
	RunID          string  `json:"runId"`
	Mode           string  `json:"mode"`
	Network        string  `json:"network"`
	TargetClass    string  `json:"targetClass"`
	Frames         int     `json:"frames"`
	Detections     int     `json:"detections"`
	Cancelled      bool    `json:"cancelled"`
	SkippedFrames  int     `json:"skippedFrames"`
	RecordFailures int     `json:"recordFailures"`
	AvgDetectTime  float64 `json:"avgDetectTime"`
	Uptime         int64   `json:"uptime"`
	Timestamp      int64   `json:"timestamp"`
}
