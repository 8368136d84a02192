package detector

import (
	"sync"

	"github.com/khaledhikmat/vs-detect/model"
	"gocv.io/x/gocv"
)

// FakeService replays canned score tables. It backs the bench mode dry runs
// and the pipeline tests where no network is available.
type FakeService struct {
	mu      sync.Mutex
	classes []string
	tables  []model.ClassScoreTable
	calls   int
	closed  bool

	// Err, when set, is returned by every Detect call
	Err error
}

// NewFake cycles through tables on successive Detect calls. Without tables
// every frame yields zero proposals.
func NewFake(classes []string, tables ...model.ClassScoreTable) *FakeService {
	return &FakeService{
		classes: classes,
		tables:  tables,
	}
}

func (svc *FakeService) Detect(frame gocv.Mat, proposalHints []model.BoundingBox) (model.ClassScoreTable, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if len(proposalHints) > 0 {
		return model.ClassScoreTable{}, ErrProposalHints
	}

	svc.calls++
	if svc.Err != nil {
		return model.ClassScoreTable{}, svc.Err
	}
	if len(svc.tables) == 0 {
		return model.ClassScoreTable{}, nil
	}

	return svc.tables[(svc.calls-1)%len(svc.tables)], nil
}

func (svc *FakeService) Classes() []string {
	return svc.classes
}

func (svc *FakeService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.closed = true
	return nil
}

// Calls is the number of Detect invocations so far
func (svc *FakeService) Calls() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.calls
}

func (svc *FakeService) Closed() bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.closed
}
