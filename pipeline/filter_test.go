package pipeline

import (
	"math"
	"testing"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/stretchr/testify/require"
)

func box(x1, y1, x2, y2 float32) model.BoundingBox {
	return model.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestFilterEndToEnd(t *testing.T) {
	scores := []float32{0.9, 0.85, 0.005}
	boxes := []model.BoundingBox{
		box(10, 10, 50, 50),
		box(12, 12, 52, 52),
		box(100, 100, 120, 120),
	}

	batch, err := Filter(scores, boxes, 0.01, 0.3)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, boxes[0], batch[0].Box)
	require.Equal(t, float32(0.9), batch[0].Score)
}

func TestFilterSuppressionThreshold(t *testing.T) {
	// inclusive corners: 10x10 inside 10x20, IoU is exactly 0.5
	boxes := []model.BoundingBox{
		box(0, 0, 9, 9),
		box(0, 0, 9, 19),
	}
	scores := []float32{0.6, 0.8}

	tests := []struct {
		name   string
		thresh float32
		want   int
	}{
		{name: "iou above threshold", thresh: 0.49, want: 1},
		{name: "iou at threshold", thresh: 0.5, want: 2},
		{name: "iou below threshold", thresh: 0.7, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := Filter(scores, boxes, 0, tt.thresh)
			require.NoError(t, err)
			require.Len(t, batch, tt.want)
			require.Equal(t, float32(0.8), batch[0].Score)
		})
	}
}

func TestFilterEdgeCases(t *testing.T) {
	batch, err := Filter(nil, nil, 0.01, 0.3)
	require.NoError(t, err)
	require.Empty(t, batch)

	batch, err = Filter([]float32{0.001, 0.002}, []model.BoundingBox{box(0, 0, 5, 5), box(50, 50, 60, 60)}, 0.01, 0.3)
	require.NoError(t, err)
	require.Empty(t, batch)

	batch, err = Filter([]float32{0.4}, []model.BoundingBox{box(0, 0, 5, 5)}, 0.01, 0.3)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// a score equal to the threshold survives
	batch, err = Filter([]float32{0.01}, []model.BoundingBox{box(0, 0, 5, 5)}, 0.01, 0.3)
	require.NoError(t, err)
	require.Len(t, batch, 1)
}

func TestFilterRejectsBadInput(t *testing.T) {
	_, err := Filter([]float32{0.5}, nil, 0.01, 0.3)
	require.ErrorIs(t, err, model.ErrShapeMismatch)

	for _, bad := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		_, err = Filter([]float32{0.9, bad}, []model.BoundingBox{box(0, 0, 5, 5), box(50, 50, 60, 60)}, 0.01, 0.3)
		require.ErrorIs(t, err, model.ErrShapeMismatch, "score %v", bad)
	}

	_, err = Filter(nil, nil, 1.5, 0.3)
	require.ErrorIs(t, err, model.ErrInvalidThreshold)

	_, err = Filter(nil, nil, 0.01, -0.1)
	require.ErrorIs(t, err, model.ErrInvalidThreshold)
}

func TestNMSTieBreak(t *testing.T) {
	scores := []float32{0.5, 0.7, 0.5}
	boxes := []model.BoundingBox{
		box(0, 0, 10, 10),
		box(100, 100, 110, 110),
		box(1, 1, 10, 10),
	}

	require.Equal(t, []int{1, 0}, NMS(scores, boxes, 0.3))
}

// a crowd of overlapping proposals in the spirit of the caviar frames
func crowdFixture() ([]float32, []model.BoundingBox) {
	scores := []float32{0.92, 0.15, 0.88, 0.03, 0.61, 0.61, 0.009, 0.45, 0.77, 0.2}
	boxes := []model.BoundingBox{
		box(10, 10, 60, 120),
		box(14, 12, 64, 118),
		box(200, 40, 250, 160),
		box(205, 45, 255, 150),
		box(120, 30, 170, 140),
		box(300, 30, 350, 140),
		box(0, 0, 383, 287),
		box(125, 35, 172, 150),
		box(60, 10, 110, 120),
		box(340, 200, 380, 280),
	}
	return scores, boxes
}

func TestFilterIdempotent(t *testing.T) {
	scores, boxes := crowdFixture()

	first, err := Filter(scores, boxes, 0.01, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	s2 := make([]float32, len(first))
	b2 := make([]model.BoundingBox, len(first))
	for i, d := range first {
		s2[i] = d.Score
		b2[i] = d.Box
	}

	second, err := Filter(s2, b2, 0.01, 0.3)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestFilterConfidenceMonotonic(t *testing.T) {
	scores, boxes := crowdFixture()

	prev := len(scores) + 1
	for _, conf := range []float32{0, 0.01, 0.1, 0.3, 0.5, 0.62, 0.8, 0.9, 0.95, 1} {
		batch, err := Filter(scores, boxes, conf, 0.3)
		require.NoError(t, err)
		require.LessOrEqual(t, len(batch), prev, "conf %v", conf)
		prev = len(batch)

		for _, d := range batch {
			require.GreaterOrEqual(t, d.Score, conf)
		}
	}
}

func TestFilterDeterministic(t *testing.T) {
	scores, boxes := crowdFixture()

	a, err := Filter(scores, boxes, 0.01, 0.3)
	require.NoError(t, err)
	b, err := Filter(scores, boxes, 0.01, 0.3)
	require.NoError(t, err)
	require.Equal(t, a, b)

	for i := 1; i < len(a); i++ {
		require.GreaterOrEqual(t, a[i-1].Score, a[i].Score)
	}
	for i := range a {
		for j := i + 1; j < len(a); j++ {
			require.LessOrEqual(t, a[i].Box.IoU(a[j].Box), float32(0.3))
		}
	}
}
