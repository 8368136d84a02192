package detector

import (
	"github.com/khaledhikmat/vs-detect/model"
	xerrs "github.com/mdobak/go-xerrors"
	"gocv.io/x/gocv"
)

var (
	ErrProposalHints = xerrs.New("external proposals are not supported, pass an empty hint set")
	ErrEmptyFrame    = xerrs.New("empty frame")
	ErrModelMissing  = xerrs.New("model file not found")
)

// IService maps one BGR frame to per class scores and boxes for every
// candidate proposal. An empty hint set selects the network's own region
// proposals.
type IService interface {
	Detect(frame gocv.Mat, proposalHints []model.BoundingBox) (model.ClassScoreTable, error)
	Classes() []string
	Close() error
}
