package detection

import (
	"fmt"
	"math"
)

// Box is an axis-aligned rectangle in pixel coordinates.
//
// The coordinate convention follows the rest of the module:
//   - (X1, Y1) is the top-left corner
//   - (X2, Y2) is the bottom-right corner
//
// A box is valid when X1 < X2 and Y1 < Y2. Degenerate boxes are dropped by
// the crop transform before they reach the encoder.
type Box struct {
	X1 float64 `json:"x1"` // Left edge
	Y1 float64 `json:"y1"` // Top edge
	X2 float64 `json:"x2"` // Right edge
	Y2 float64 `json:"y2"` // Bottom edge
}

// NewBoxXYWH builds a box from a top-left corner and an extent, the form
// used by the Kaggle annotation files.
func NewBoxXYWH(x, y, w, h float64) Box {
	return Box{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Width returns X2 - X1, or 0 for an inverted box.
func (b Box) Width() float64 {
	return math.Max(b.X2-b.X1, 0)
}

// Height returns Y2 - Y1, or 0 for an inverted box.
func (b Box) Height() float64 {
	return math.Max(b.Y2-b.Y1, 0)
}

// Area returns Width * Height.
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the box center.
func (b Box) Center() (cx, cy float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Valid reports whether the box has positive width and height.
func (b Box) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Scale multiplies every coordinate by s.
func (b Box) Scale(s float64) Box {
	return Box{X1: b.X1 * s, Y1: b.Y1 * s, X2: b.X2 * s, Y2: b.Y2 * s}
}

// Intersect returns the overlapping region of two boxes. The result is not
// valid when the boxes do not overlap.
func (b Box) Intersect(o Box) Box {
	return Box{
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
		X2: math.Min(b.X2, o.X2),
		Y2: math.Min(b.Y2, o.Y2),
	}
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
func (b Box) IoU(o Box) float64 {
	inter := b.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (b Box) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is a scored box produced by the Decoder.
type Detection struct {
	Box   Box     `json:"box"`
	Label int     `json:"label"` // Class channel; always 0 for single-class character detection
	Score float64 `json:"score"` // Heatmap peak value in [0, 1]
}
