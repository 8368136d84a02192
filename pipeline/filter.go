package pipeline

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/khaledhikmat/vs-detect/model"
	"golang.org/x/xerrors"
)

// Filter applies non maximum suppression to one class column and then drops
// the survivors scoring below confThresh. The result is ordered by descending
// score. Equal scores keep their proposal order. Non finite scores are
// malformed detector output.
func Filter(scores []float32, boxes []model.BoundingBox, confThresh, nmsThresh float32) (model.DetectionBatch, error) {
	if len(scores) != len(boxes) {
		return nil, xerrors.Errorf("%d scores for %d boxes: %w", len(scores), len(boxes), model.ErrShapeMismatch)
	}
	for i, s := range scores {
		if math32.IsNaN(s) || math32.IsInf(s, 0) {
			return nil, xerrors.Errorf("score %d is %v: %w", i, s, model.ErrShapeMismatch)
		}
	}
	if !inUnitRange(confThresh) {
		return nil, xerrors.Errorf("confidence threshold %v: %w", confThresh, model.ErrInvalidThreshold)
	}
	if !inUnitRange(nmsThresh) {
		return nil, xerrors.Errorf("nms threshold %v: %w", nmsThresh, model.ErrInvalidThreshold)
	}

	batch := model.DetectionBatch{}
	for _, i := range NMS(scores, boxes, nmsThresh) {
		if scores[i] < confThresh {
			continue
		}
		batch = append(batch, model.Detection{
			Box:   boxes[i],
			Score: scores[i],
		})
	}

	return batch, nil
}

// NMS returns the indices of the boxes that survive greedy suppression, best
// score first. A box is suppressed when its IoU with an already kept box is
// strictly greater than thresh.
func NMS(scores []float32, boxes []model.BoundingBox, thresh float32) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	suppressed := make([]bool, len(order))
	keep := make([]int, 0, len(order))

	for i, idx := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, idx)

		for j := i + 1; j < len(order); j++ {
			if suppressed[j] {
				continue
			}
			if boxes[idx].IoU(boxes[order[j]]) > thresh {
				suppressed[j] = true
			}
		}
	}

	return keep
}

func inUnitRange(v float32) bool {
	return v >= 0 && v <= 1
}
