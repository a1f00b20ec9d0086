package detection

import (
	"fmt"
	"math"
)

// Size is a box extent in heatmap units.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Target is the training target built from one image's ground truth.
//
// Indices, Labels and Sizes hold exactly one entry per input box, in input
// order. Boxes whose centers land on the same cell keep separate entries,
// since the loss gathers predictions per box.
type Target struct {
	// Heatmap has shape (NumClasses, Height, Width) with values in [0, 1].
	Heatmap *Heatmap `json:"heatmap"`

	// Indices holds row*Width + col of each box's floored, clamped center.
	Indices []int `json:"indices"`

	// Labels is a copy of the input labels.
	Labels []int `json:"labels"`

	// Sizes is each box's (w, h) in heatmap units, the regression target
	// for a size head.
	Sizes []Size `json:"sizes"`
}

// Encoder turns ground-truth boxes into heatmap targets.
type Encoder struct {
	NumClasses int
	Height     int
	Width      int

	// MinOverlap controls the Gaussian radius; see GaussianRadius.
	MinOverlap float64
}

// NewEncoder returns an encoder for heatmaps of shape (numClasses, height,
// width) using DefaultMinOverlap.
func NewEncoder(numClasses, height, width int) (*Encoder, error) {
	if numClasses <= 0 || height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid encoder shape (%d, %d, %d): all dimensions must be positive",
			numClasses, height, width)
	}
	return &Encoder{
		NumClasses: numClasses,
		Height:     height,
		Width:      width,
		MinOverlap: DefaultMinOverlap,
	}, nil
}

// Encode builds the heatmap target for one image.
//
// Parameters:
//   - boxes: ground-truth boxes already expressed in heatmap coordinates
//     (the caller divides image coordinates by Stride).
//   - labels: class channel of each box; len(labels) must equal len(boxes).
//
// For every box a Gaussian of radius GaussianRadius(h, w, MinOverlap) is
// splatted at the floored center, clipped to the map. Overlapping Gaussians
// in a channel combine with max. A radius of 0 marks only the center cell.
//
// An empty box list yields an all-zero heatmap and empty index/label
// arrays. The only errors are caller faults: mismatched lengths or a label
// outside [0, NumClasses).
func (e *Encoder) Encode(boxes []Box, labels []int) (*Target, error) {
	if len(boxes) != len(labels) {
		return nil, fmt.Errorf("got %d boxes but %d labels", len(boxes), len(labels))
	}

	hm, err := NewHeatmap(e.NumClasses, e.Height, e.Width)
	if err != nil {
		return nil, err
	}

	target := &Target{
		Heatmap: hm,
		Indices: make([]int, len(boxes)),
		Labels:  make([]int, len(labels)),
		Sizes:   make([]Size, len(boxes)),
	}
	copy(target.Labels, labels)

	minOverlap := e.MinOverlap
	if minOverlap == 0 {
		minOverlap = DefaultMinOverlap
	}

	for i, b := range boxes {
		label := labels[i]
		if label < 0 || label >= e.NumClasses {
			return nil, fmt.Errorf("box %d has label %d outside [0, %d)", i, label, e.NumClasses)
		}

		w, h := b.Width(), b.Height()
		col, row := e.cell(b)

		radius := GaussianRadius(h, w, minOverlap)
		drawGaussian(hm.Channel(label), e.Width, e.Height, col, row, radius)

		target.Indices[i] = row*e.Width + col
		target.Sizes[i] = Size{W: w, H: h}
	}

	return target, nil
}

// cell returns the floored center of b clamped into the heatmap.
func (e *Encoder) cell(b Box) (col, row int) {
	cx, cy := b.Center()
	col = clampInt(floorToInt(cx), 0, e.Width-1)
	row = clampInt(floorToInt(cy), 0, e.Height-1)
	return col, row
}

// drawGaussian max-merges an unnormalized Gaussian centered on (cx, cy)
// into a single channel.
func drawGaussian(channel []float32, width, height, cx, cy, radius int) {
	sigma := gaussianSigma(radius)
	denom := 2 * sigma * sigma

	top := maxInt(cy-radius, 0)
	bottom := minInt(cy+radius, height-1)
	left := maxInt(cx-radius, 0)
	right := minInt(cx+radius, width-1)

	for y := top; y <= bottom; y++ {
		dy := float64(y - cy)
		for x := left; x <= right; x++ {
			dx := float64(x - cx)
			v := float32(math.Exp(-(dx*dx + dy*dy) / denom))
			idx := y*width + x
			if v > channel[idx] {
				channel[idx] = v
			}
		}
	}
}

// floorToInt floors v, mapping NaN to 0 so clamping stays well defined.
func floorToInt(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Floor(v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
