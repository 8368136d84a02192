package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/config"
)

const (
	errorsEntity     = "errors"
	frameStatsEntity = "frame-stats"
	runStatsEntity   = "run-stats"
)

type filesDBService struct {
	CfgSvc config.IService
}

// NewFilesDB stores every entity kind as a JSON array in the runs folder
func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) RetrieveRunStats() ([]model.RunStats, error) {
	return retrieveEntities[model.RunStats](runStatsEntity, svc.CfgSvc)
}

func (svc *filesDBService) RetrieveFrameStats(runID string) ([]model.FrameStats, error) {
	all, err := retrieveEntities[model.FrameStats](frameStatsEntity, svc.CfgSvc)
	if err != nil {
		return nil, err
	}

	var result []model.FrameStats
	for _, s := range all {
		if s.RunID == runID {
			result = append(result, s)
		}
	}

	return result, nil
}

func (svc *filesDBService) NewError(err interface{}) error {
	// Determine if the error is custom
	var customErr model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		customErr = e
	case error:
		if !errors.As(e, &customErr) {
			customErr = model.CustomError{
				Processor:  "N/A",
				Inner:      e,
				Message:    e.Error(),
				StackTrace: "N/A",
			}
		}
	default:
		customErr = model.CustomError{
			Processor:  "N/A",
			Inner:      fmt.Errorf("%v", e),
			Message:    fmt.Sprintf("%v", e),
			StackTrace: "N/A",
		}
	}

	inner := ""
	if customErr.Inner != nil {
		inner = customErr.Inner.Error()
	}

	// Create an error object to persist
	errorData := struct {
		Timestamp  int64                  `json:"timestamp"`
		Processor  string                 `json:"processor"`
		Inner      string                 `json:"innerError"`
		Message    string                 `json:"message"`
		StackTrace string                 `json:"stackTrace"`
		Misc       map[string]interface{} `json:"misc"`
	}{
		Timestamp:  time.Now().Unix(),
		Processor:  customErr.Processor,
		Inner:      inner,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}
	return newEntity(errorData, errorsEntity, svc.CfgSvc)
}

func (svc *filesDBService) NewFrameStats(stats model.FrameStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, frameStatsEntity, svc.CfgSvc)
}

func (svc *filesDBService) NewRunStats(stats model.RunStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, runStatsEntity, svc.CfgSvc)
}

func entityFile(filename string, cfgsvc config.IService) string {
	return filepath.Join(cfgsvc.GetRunsFolder(), fmt.Sprintf("%s.json", filename))
}

func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	entities, err := retrieveEntities[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgsvc.GetRunsFolder(), 0755); err != nil {
		return err
	}

	// Write the JSON data to the file (with truncation)
	return os.WriteFile(entityFile(filename, cfgsvc), data, 0644)
}

func retrieveEntities[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(entityFile(filename, cfgsvc))
	if errors.Is(err, os.ErrNotExist) {
		// WARNING: File not found, return empty slice
		return entities, nil
	}
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(data, &entities)
	if err != nil {
		return nil, err
	}

	return entities, nil
}
