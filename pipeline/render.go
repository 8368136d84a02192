package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"github.com/khaledhikmat/vs-detect/model"
	"gocv.io/x/gocv"
)

// Style defines how detections are drawn on a frame
type Style struct {
	Color         color.RGBA
	LineThickness int
	Face          gocv.HersheyFont
	FontScale     float64
	FontThickness int
	// distance between the label baseline and the top edge of the box
	LabelOffset int
}

// DefaultStyle draws red boxes with a percentage label above each box
func DefaultStyle() Style {
	return Style{
		Color:         color.RGBA{R: 255, G: 0, B: 0, A: 0},
		LineThickness: 3,
		Face:          gocv.FontHersheyDuplex,
		FontScale:     0.6,
		FontThickness: 1,
		LabelOffset:   10,
	}
}

// Render draws the batch on a copy of frame. The caller owns the returned Mat.
func Render(frame gocv.Mat, batch model.DetectionBatch, style Style) gocv.Mat {
	out := frame.Clone()
	if out.Empty() {
		return out
	}

	bounds := image.Rect(0, 0, out.Cols(), out.Rows())

	for _, det := range batch {
		rect := det.Box.RectWithin(bounds)
		if rect.Empty() {
			continue
		}

		// Rect is half open, OpenCV treats the second corner as inclusive
		gocv.Rectangle(&out, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X-1, rect.Max.Y-1), style.Color, style.LineThickness)

		text := scoreLabel(det.Score)
		size := gocv.GetTextSize(text, style.Face, style.FontScale, style.FontThickness)
		origin := labelOrigin(rect, size, bounds, style.LabelOffset)
		gocv.PutText(&out, text, origin, style.Face, style.FontScale, style.Color, style.FontThickness)
	}

	return out
}

func scoreLabel(score float32) string {
	return fmt.Sprintf("%.0f%%", score*100)
}

// labelOrigin places the text baseline LabelOffset pixels above the box and
// pulls it back inside the frame when it would spill over an edge.
func labelOrigin(box image.Rectangle, text image.Point, bounds image.Rectangle, offset int) image.Point {
	x := box.Min.X
	y := box.Min.Y - offset

	if x+text.X > bounds.Max.X {
		x = bounds.Max.X - text.X
	}
	if x < bounds.Min.X {
		x = bounds.Min.X
	}

	// the origin is the bottom left corner of the text
	if y-text.Y < bounds.Min.Y {
		y = bounds.Min.Y + text.Y
	}
	if y > bounds.Max.Y-1 {
		y = bounds.Max.Y - 1
	}

	return image.Pt(x, y)
}
