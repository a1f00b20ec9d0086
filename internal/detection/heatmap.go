package detection

import "fmt"

// Stride is the down-sampling factor between the working-frame image and
// the heatmap. Image coordinates are divided by Stride going into heatmap
// space and multiplied by Stride coming back out.
const Stride = 4

// Heatmap is a dense (Classes, Height, Width) array of center likelihoods.
//
// Data is stored row-major per class channel:
//
//	Data[c*Height*Width + row*Width + col]
type Heatmap struct {
	Classes int       `json:"classes"`
	Height  int       `json:"height"`
	Width   int       `json:"width"`
	Data    []float32 `json:"data"`
}

// NewHeatmap allocates a zeroed heatmap.
func NewHeatmap(classes, height, width int) (*Heatmap, error) {
	if classes <= 0 || height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid heatmap shape (%d, %d, %d): all dimensions must be positive",
			classes, height, width)
	}
	return &Heatmap{
		Classes: classes,
		Height:  height,
		Width:   width,
		Data:    make([]float32, classes*height*width),
	}, nil
}

// HeatmapFromGrid builds a single-class heatmap from a row-major 2D grid.
// All rows must have the same length.
func HeatmapFromGrid(grid [][]float32) (*Heatmap, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, fmt.Errorf("heatmap grid is empty")
	}
	h, err := NewHeatmap(1, len(grid), len(grid[0]))
	if err != nil {
		return nil, err
	}
	for row, line := range grid {
		if len(line) != h.Width {
			return nil, fmt.Errorf("heatmap grid row %d has %d columns, want %d", row, len(line), h.Width)
		}
		copy(h.Data[row*h.Width:], line)
	}
	return h, nil
}

// Validate checks that Data matches the declared shape.
func (h *Heatmap) Validate() error {
	if h.Classes <= 0 || h.Height <= 0 || h.Width <= 0 {
		return fmt.Errorf("invalid heatmap shape (%d, %d, %d)", h.Classes, h.Height, h.Width)
	}
	if want := h.Classes * h.Height * h.Width; len(h.Data) != want {
		return fmt.Errorf("heatmap data has %d values, shape requires %d", len(h.Data), want)
	}
	return nil
}

// Index returns the flat offset of (class, row, col) in Data.
func (h *Heatmap) Index(class, row, col int) int {
	return (class*h.Height+row)*h.Width + col
}

// At returns the value at (class, row, col).
func (h *Heatmap) At(class, row, col int) float32 {
	return h.Data[h.Index(class, row, col)]
}

// Set stores v at (class, row, col).
func (h *Heatmap) Set(class, row, col int, v float32) {
	h.Data[h.Index(class, row, col)] = v
}

// Channel returns the backing slice of one class channel.
func (h *Heatmap) Channel(class int) []float32 {
	n := h.Height * h.Width
	return h.Data[class*n : (class+1)*n]
}

// Max returns the largest value in the heatmap.
func (h *Heatmap) Max() float32 {
	var m float32
	for _, v := range h.Data {
		if v > m {
			m = v
		}
	}
	return m
}
