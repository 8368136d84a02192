package model

import (
	xerrs "github.com/mdobak/go-xerrors"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrShapeMismatch    = xerrs.New("detector output shape mismatch")
	ErrBackgroundClass  = xerrs.New("class 0 is reserved for background")
	ErrClassOutOfRange  = xerrs.New("class index out of range")
	ErrInvalidThreshold = xerrs.New("threshold must be within [0,1]")
)

// BackgroundClass is the column every detector reserves for "no object"
const BackgroundClass = 0

// ClassScoreTable is the raw detector output for one frame. Each row is a
// candidate proposal. Scores has one column per class, Boxes has four columns
// (x1, y1, x2, y2) per class in the same class order.
type ClassScoreTable struct {
	Scores *mat.Dense
	Boxes  *mat.Dense
}

// NewClassScoreTable validates the shape contract between the score and box
// matrices. Nil matrices describe a frame without proposals.
func NewClassScoreTable(scores, boxes *mat.Dense) (ClassScoreTable, error) {
	if scores == nil && boxes == nil {
		return ClassScoreTable{}, nil
	}
	if scores == nil || boxes == nil {
		return ClassScoreTable{}, xerrors.Errorf("missing scores or boxes: %w", ErrShapeMismatch)
	}

	sr, sc := scores.Dims()
	br, bc := boxes.Dims()
	if sr != br || bc != 4*sc {
		return ClassScoreTable{}, xerrors.Errorf("scores %dx%d, boxes %dx%d: %w", sr, sc, br, bc, ErrShapeMismatch)
	}

	return ClassScoreTable{
		Scores: scores,
		Boxes:  boxes,
	}, nil
}

// Proposals is the number of candidate rows
func (t ClassScoreTable) Proposals() int {
	if t.Scores == nil {
		return 0
	}
	r, _ := t.Scores.Dims()
	return r
}

// Classes is the number of class columns, background included
func (t ClassScoreTable) Classes() int {
	if t.Scores == nil {
		return 0
	}
	_, c := t.Scores.Dims()
	return c
}

// Column extracts the scores and boxes of a single class
func (t ClassScoreTable) Column(class int) ([]float32, []BoundingBox, error) {
	if class == BackgroundClass {
		return nil, nil, ErrBackgroundClass
	}
	if t.Scores == nil {
		return []float32{}, []BoundingBox{}, nil
	}
	if class < 0 || class >= t.Classes() {
		return nil, nil, xerrors.Errorf("class %d of %d: %w", class, t.Classes(), ErrClassOutOfRange)
	}

	n := t.Proposals()
	col := mat.Col(nil, class, t.Scores)
	scores := make([]float32, n)
	boxes := make([]BoundingBox, n)
	for i := 0; i < n; i++ {
		scores[i] = float32(col[i])
		boxes[i] = BoundingBox{
			X1: float32(t.Boxes.At(i, 4*class+0)),
			Y1: float32(t.Boxes.At(i, 4*class+1)),
			X2: float32(t.Boxes.At(i, 4*class+2)),
			Y2: float32(t.Boxes.At(i, 4*class+3)),
		}
	}

	return scores, boxes, nil
}
