package detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeatmap(t *testing.T, classes, height, width int) *Heatmap {
	t.Helper()
	h, err := NewHeatmap(classes, height, width)
	require.NoError(t, err)
	return h
}

func TestDecode_AllBelowThreshold(t *testing.T) {
	h := newTestHeatmap(t, 1, 16, 16)
	for i := range h.Data {
		h.Data[i] = 0.1
	}

	dets, err := NewDecoder(0.3, 10).Decode(h)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDecode_ZeroThresholdIgnoresEmptyCells(t *testing.T) {
	h := newTestHeatmap(t, 1, 104, 104)

	dets, err := NewDecoder(0, 0).Decode(h)
	require.NoError(t, err)
	assert.Empty(t, dets)

	h.Set(0, 10, 20, 0.05)
	dets, err = NewDecoder(0, 0).Decode(h)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.05, dets[0].Score, 1e-6)
}

func TestDecode_ThresholdIsInclusive(t *testing.T) {
	h := newTestHeatmap(t, 1, 8, 8)
	h.Set(0, 3, 3, 0.3)

	dets, err := NewDecoder(0.3, 10).Decode(h)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.3, dets[0].Score, 1e-6)

	dets, err = NewDecoder(0.31, 10).Decode(h)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDecode_TiesAreAllPeaks(t *testing.T) {
	h := newTestHeatmap(t, 1, 8, 8)
	h.Set(0, 2, 2, 0.8)
	h.Set(0, 2, 3, 0.8)

	dets, err := NewDecoder(0.5, 10).Decode(h)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	// Equal scores keep scan order: (2,2) before (2,3).
	cx0, _ := dets[0].Box.Center()
	cx1, _ := dets[1].Box.Center()
	assert.Equal(t, 2.0*Stride, cx0)
	assert.Equal(t, 3.0*Stride, cx1)
}

func TestDecode_SuppressesNonMaxima(t *testing.T) {
	h := newTestHeatmap(t, 1, 8, 8)
	h.Set(0, 4, 4, 0.9)
	h.Set(0, 4, 5, 0.7)
	h.Set(0, 5, 5, 0.6)

	dets, err := NewDecoder(0.5, 10).Decode(h)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.9, dets[0].Score, 1e-6)
}

func TestDecode_KernelSize(t *testing.T) {
	h := newTestHeatmap(t, 1, 10, 10)
	h.Set(0, 5, 2, 0.9)
	h.Set(0, 5, 4, 0.8) // two cells away

	d := NewDecoder(0.5, 10)
	dets, err := d.Decode(h)
	require.NoError(t, err)
	assert.Len(t, dets, 2, "3x3 window sees both peaks")

	d.KernelSize = 5
	dets, err = d.Decode(h)
	require.NoError(t, err)
	assert.Len(t, dets, 1, "5x5 window suppresses the weaker peak")

	d.KernelSize = 4
	_, err = d.Decode(h)
	assert.Error(t, err)
}

func TestDecode_SortedAndTopK(t *testing.T) {
	h := newTestHeatmap(t, 1, 20, 20)
	scores := []float32{0.4, 0.9, 0.6, 0.7, 0.5}
	for i, s := range scores {
		h.Set(0, 2, 2+i*3, s)
	}

	dets, err := NewDecoder(0.3, 3).Decode(h)
	require.NoError(t, err)
	require.Len(t, dets, 3)
	assert.InDelta(t, 0.9, dets[0].Score, 1e-6)
	assert.InDelta(t, 0.7, dets[1].Score, 1e-6)
	assert.InDelta(t, 0.6, dets[2].Score, 1e-6)

	all, err := NewDecoder(0.3, 0).Decode(h)
	require.NoError(t, err)
	assert.Len(t, all, len(scores))
}

func TestDecode_PoolsClasses(t *testing.T) {
	h := newTestHeatmap(t, 2, 10, 10)
	h.Set(0, 1, 1, 0.6)
	h.Set(1, 1, 1, 0.8)

	dets, err := NewDecoder(0.5, 10).Decode(h)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, 1, dets[0].Label)
	assert.Equal(t, 0, dets[1].Label)
}

func TestDecode_FixedSize(t *testing.T) {
	h := newTestHeatmap(t, 1, 10, 10)
	h.Set(0, 4, 6, 1)

	d := NewDecoder(0.5, 10)
	d.Sizes = FixedSize{W: 4, H: 2}
	dets, err := d.Decode(h)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, Box{X1: 16, Y1: 12, X2: 32, Y2: 20}, dets[0].Box)
}

func TestDecode_SizeMap(t *testing.T) {
	h := newTestHeatmap(t, 1, 4, 4)
	h.Set(0, 1, 2, 1)

	data := make([]float32, 2*4*4)
	data[1*4+2] = 6    // width at (1, 2)
	data[16+1*4+2] = 2 // height at (1, 2)
	sm, err := NewSizeMap(4, 4, data)
	require.NoError(t, err)

	d := NewDecoder(0.5, 10)
	d.Sizes = sm
	dets, err := d.Decode(h)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, Box{X1: -4, Y1: 0, X2: 20, Y2: 8}, dets[0].Box)

	_, err = NewSizeMap(4, 4, data[:10])
	assert.Error(t, err)

	d.Sizes = &SizeMap{Height: 2, Width: 2, Data: make([]float32, 8)}
	_, err = d.Decode(h)
	assert.Error(t, err, "size map shape must match heatmap")
}

func TestDecode_InvalidHeatmap(t *testing.T) {
	h := &Heatmap{Classes: 1, Height: 4, Width: 4, Data: make([]float32, 3)}
	_, err := NewDecoder(0.5, 10).Decode(h)
	assert.Error(t, err)
}

func TestDecode_Deterministic(t *testing.T) {
	h := newTestHeatmap(t, 1, 32, 32)
	for i := range h.Data {
		h.Data[i] = float32(math.Abs(math.Sin(float64(i) * 0.37)))
	}

	d := NewDecoder(0.3, 50)
	first, err := d.Decode(h)
	require.NoError(t, err)
	second, err := d.Decode(h)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	enc, err := NewEncoder(1, 104, 104)
	require.NoError(t, err)

	boxes := []Box{
		{X1: 10.2, Y1: 14.9, X2: 20.7, Y2: 27.1},
		{X1: 50, Y1: 60, X2: 62, Y2: 75},
		{X1: 80.5, Y1: 5.5, X2: 95.5, Y2: 19.5},
	}
	target, err := enc.Encode(boxes, []int{0, 0, 0})
	require.NoError(t, err)

	d := NewDecoder(0.5, 10)
	d.Stride = 1
	dets, err := d.Decode(target.Heatmap)
	require.NoError(t, err)
	require.Len(t, dets, len(boxes))

	for _, b := range boxes {
		cx, cy := b.Center()
		found := false
		for _, det := range dets {
			dx, dy := det.Box.Center()
			if math.Abs(dx-cx) <= 1 && math.Abs(dy-cy) <= 1 {
				found = true
				break
			}
		}
		assert.True(t, found, "no detection within one cell of %v", b)
	}
}

func TestEncodeDecode_PageScenario(t *testing.T) {
	// 416x416 working frame, stride 4 -> 104x104 heatmap.
	imageBox := Box{X1: 100, Y1: 100, X2: 150, Y2: 160}

	enc, err := NewEncoder(1, 416/Stride, 416/Stride)
	require.NoError(t, err)
	target, err := enc.Encode([]Box{imageBox.Scale(1.0 / Stride)}, []int{0})
	require.NoError(t, err)

	dets, err := NewDecoder(0.3, 10).Decode(target.Heatmap)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	cx, cy := dets[0].Box.Center()
	assert.InDelta(t, 125, cx, 4)
	assert.InDelta(t, 130, cy, 4)
	assert.Equal(t, 0, dets[0].Label)
	assert.InDelta(t, 1.0, dets[0].Score, 1e-9)
}
