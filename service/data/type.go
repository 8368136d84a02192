package data

import "github.com/khaledhikmat/vs-detect/model"

type IService interface {
	RetrieveRunStats() ([]model.RunStats, error)
	RetrieveFrameStats(runID string) ([]model.FrameStats, error)

	NewError(err interface{}) error
	NewFrameStats(stats model.FrameStats) error
	NewRunStats(stats model.RunStats) error
}
