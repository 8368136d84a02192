package model

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// BoundingBox is a detector box in pixel space. Corners are inclusive, which
// matches the convention the Faster R-CNN regressions were trained with.
type BoundingBox struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func (b BoundingBox) Valid() bool {
	return b.X1 <= b.X2 && b.Y1 <= b.Y2
}

func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1 + 1
}

func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1 + 1
}

func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Intersection returns the overlapping area of two boxes, 0 if they are disjoint
func (b BoundingBox) Intersection(o BoundingBox) float32 {
	w := math32.Max(0, math32.Min(b.X2, o.X2)-math32.Max(b.X1, o.X1)+1)
	h := math32.Max(0, math32.Min(b.Y2, o.Y2)-math32.Max(b.Y1, o.Y1)+1)
	return w * h
}

// IoU is the Intersection over Union of two boxes
func (b BoundingBox) IoU(o BoundingBox) float32 {
	inter := b.Intersection(o)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// maxCoord bounds Rect so float to int conversion stays defined
const maxCoord = 1 << 24

// Rect converts to integer pixel corners. The rectangle is half open, so the
// inclusive X2/Y2 corner is pushed out by one.
func (b BoundingBox) Rect() image.Rectangle {
	return b.RectWithin(image.Rect(-maxCoord, -maxCoord, maxCoord, maxCoord))
}

// RectWithin is the part of the box inside bounds. Coordinates are clamped
// before the integer conversion, a box with NaN corners is empty.
func (b BoundingBox) RectWithin(bounds image.Rectangle) image.Rectangle {
	if math32.IsNaN(b.X1) || math32.IsNaN(b.Y1) || math32.IsNaN(b.X2) || math32.IsNaN(b.Y2) {
		return image.Rectangle{}
	}

	clampX := func(v float32) int {
		return int(math32.Max(float32(bounds.Min.X-1), math32.Min(v, float32(bounds.Max.X))))
	}
	clampY := func(v float32) int {
		return int(math32.Max(float32(bounds.Min.Y-1), math32.Min(v, float32(bounds.Max.Y))))
	}

	r := image.Rect(clampX(b.X1), clampY(b.Y1), clampX(b.X2)+1, clampY(b.Y2)+1)
	return r.Intersect(bounds)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.1f, %.1f)-(%.1f, %.1f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is a box for the pipeline's single target class plus its score
type Detection struct {
	Box   BoundingBox `json:"box"`
	Score float32     `json:"score"`
}

// DetectionBatch holds the detections of one frame, highest score first
type DetectionBatch []Detection

// TopScore returns the best score in the batch, or 0 when empty
func (b DetectionBatch) TopScore() float32 {
	if len(b) == 0 {
		return 0
	}
	return b[0].Score
}
