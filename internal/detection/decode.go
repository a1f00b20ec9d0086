package detection

import (
	"fmt"
	"sort"
)

// BoxSizer supplies the extent of a decoded box, in heatmap units, for a
// peak at (class, row, col).
type BoxSizer interface {
	SizeAt(class, row, col int) Size
}

// FixedSize gives every peak the same nominal extent. It is the default
// when the model has no size-regression head.
type FixedSize Size

// SizeAt implements BoxSizer.
func (f FixedSize) SizeAt(class, row, col int) Size {
	return Size(f)
}

// DefaultBoxSize is the nominal character extent in heatmap units used when
// no size regression is available (about 40x40 working-frame pixels).
var DefaultBoxSize = FixedSize{W: 10, H: 10}

// SizeMap reads extents from a size-regression output of shape
// (2, Height, Width): channel 0 holds widths, channel 1 heights, both in
// heatmap units. The map is shared by all classes.
type SizeMap struct {
	Height int
	Width  int
	Data   []float32
}

// NewSizeMap validates a (2, height, width) regression tensor.
func NewSizeMap(height, width int, data []float32) (*SizeMap, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid size map shape (2, %d, %d)", height, width)
	}
	if len(data) != 2*height*width {
		return nil, fmt.Errorf("size map has %d values, shape requires %d", len(data), 2*height*width)
	}
	return &SizeMap{Height: height, Width: width, Data: data}, nil
}

// SizeAt implements BoxSizer. Negative regressions are clamped to 0.
func (m *SizeMap) SizeAt(class, row, col int) Size {
	i := row*m.Width + col
	w := float64(m.Data[i])
	h := float64(m.Data[m.Height*m.Width+i])
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return Size{W: w, H: h}
}

// Decoder extracts scored boxes from a predicted heatmap.
type Decoder struct {
	// Threshold is the inclusive minimum peak score.
	Threshold float64

	// TopK caps the number of detections. Zero or negative means no cap.
	TopK int

	// KernelSize is the odd side length of the local-maximum window.
	KernelSize int

	// Stride maps heatmap coordinates back to working-frame pixels.
	Stride int

	// Sizes supplies box extents. Nil means DefaultBoxSize.
	Sizes BoxSizer
}

// NewDecoder returns a decoder with a 3x3 peak window, Stride and
// DefaultBoxSize.
func NewDecoder(threshold float64, topK int) *Decoder {
	return &Decoder{
		Threshold:  threshold,
		TopK:       topK,
		KernelSize: 3,
		Stride:     Stride,
		Sizes:      DefaultBoxSize,
	}
}

type peak struct {
	class, row, col int
	score           float32
}

// Decode converts a heatmap into detections in working-frame pixels,
// sorted by descending score.
//
// # Algorithm
//
//  1. A cell is a peak when its value is ≥ every neighbour inside the
//     KernelSize window (ties are kept), ≥ Threshold and above zero.
//     A zero cell is never a peak, even with a zero Threshold.
//  2. Peaks are collected channel by channel in row-major order.
//  3. The pooled peaks are stable-sorted by score, so equal scores keep
//     (class, row, col) order, then truncated to TopK.
//  4. Each peak becomes a box centered at (col, row) with the extent from
//     Sizes, and all coordinates are multiplied by Stride.
//
// A heatmap with nothing at or above Threshold yields an empty slice.
func (d *Decoder) Decode(h *Heatmap) ([]Detection, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	kernel := d.KernelSize
	if kernel <= 0 {
		kernel = 3
	}
	if kernel%2 == 0 {
		return nil, fmt.Errorf("peak kernel size must be odd, got %d", kernel)
	}
	stride := d.Stride
	if stride <= 0 {
		stride = Stride
	}
	sizer := d.Sizes
	if sizer == nil {
		sizer = DefaultBoxSize
	}
	if sm, ok := sizer.(*SizeMap); ok && (sm.Height != h.Height || sm.Width != h.Width) {
		return nil, fmt.Errorf("size map is %dx%d but heatmap is %dx%d", sm.Width, sm.Height, h.Width, h.Height)
	}

	peaks := findPeaks(h, kernel/2, float32(d.Threshold))

	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].score > peaks[j].score
	})
	if d.TopK > 0 && len(peaks) > d.TopK {
		peaks = peaks[:d.TopK]
	}

	dets := make([]Detection, 0, len(peaks))
	s := float64(stride)
	for _, p := range peaks {
		size := sizer.SizeAt(p.class, p.row, p.col)
		cx, cy := float64(p.col), float64(p.row)
		box := Box{
			X1: cx - size.W/2,
			Y1: cy - size.H/2,
			X2: cx + size.W/2,
			Y2: cy + size.H/2,
		}
		dets = append(dets, Detection{
			Box:   box.Scale(s),
			Label: p.class,
			Score: float64(p.score),
		})
	}
	return dets, nil
}

// findPeaks scans every channel for positive local maxima at or above
// threshold.
func findPeaks(h *Heatmap, half int, threshold float32) []peak {
	peaks := make([]peak, 0)
	for c := 0; c < h.Classes; c++ {
		ch := h.Channel(c)
		for row := 0; row < h.Height; row++ {
			for col := 0; col < h.Width; col++ {
				v := ch[row*h.Width+col]
				if v < threshold || v <= 0 {
					continue
				}
				if isLocalMax(ch, h.Width, h.Height, row, col, half, v) {
					peaks = append(peaks, peak{class: c, row: row, col: col, score: v})
				}
			}
		}
	}
	return peaks
}

func isLocalMax(ch []float32, width, height, row, col, half int, v float32) bool {
	for dy := -half; dy <= half; dy++ {
		y := row + dy
		if y < 0 || y >= height {
			continue
		}
		for dx := -half; dx <= half; dx++ {
			x := col + dx
			if x < 0 || x >= width {
				continue
			}
			if ch[y*width+x] > v {
				return false
			}
		}
	}
	return true
}
