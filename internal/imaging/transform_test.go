package imaging

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
)

func newPage(width, height int) *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, width, height))
}

func TestScaleRange(t *testing.T) {
	r := ScaleRange{Min: 0.35, Max: 0.65}
	assert.NoError(t, r.Validate())
	assert.InDelta(t, 0.5, r.Mid(), 1e-12)

	assert.ErrorIs(t, ScaleRange{Min: 0.6, Max: 0.3}.Validate(), ErrInvalidScaleRange)
	assert.ErrorIs(t, ScaleRange{Min: 0, Max: 0.3}.Validate(), ErrInvalidScaleRange)
	assert.ErrorIs(t, ScaleRange{Min: -1, Max: 1}.Validate(), ErrInvalidScaleRange)
}

func TestNewTransforms_InvalidConfig(t *testing.T) {
	size := image.Pt(416, 416)

	_, err := NewRandomCropAndResize(ScaleRange{Min: 0.7, Max: 0.3}, size, DefaultMinVisibility, nil)
	assert.ErrorIs(t, err, ErrInvalidScaleRange)

	_, err = NewRandomCropAndResize(ScaleRange{Min: 0.3, Max: 0.7}, image.Pt(0, 416), DefaultMinVisibility, nil)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewCenterCropAndResize(0.5, size, 1.5)
	assert.ErrorIs(t, err, ErrInvalidVisibility)

	_, err = NewCenterCropAndResize(0, size, DefaultMinVisibility)
	assert.ErrorIs(t, err, ErrInvalidScaleRange)
}

func TestCenterCrop_WindowAndBoxes(t *testing.T) {
	tr, err := NewCenterCropAndResize(0.5, image.Pt(200, 200), DefaultMinVisibility)
	require.NoError(t, err)

	boxes := []detection.Box{
		{X1: 300, Y1: 200, X2: 340, Y2: 260}, // inside
		{X1: 10, Y1: 10, X2: 50, Y2: 50},     // outside the window
		{X1: 150, Y1: 100, X2: 250, Y2: 200}, // half visible
	}
	labels := []string{"U+306F", "U+304B", "U+3044"}

	res, err := tr.Apply(newPage(800, 600), boxes, labels)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(200, 100, 600, 500), res.Params.Window)
	assert.InDelta(t, 0.5, res.Params.ScaleX, 1e-12)
	assert.InDelta(t, 0.5, res.Params.ScaleY, 1e-12)
	assert.Equal(t, image.Rect(0, 0, 200, 200), res.Image.Bounds())

	require.Len(t, res.Boxes, 2)
	assert.Equal(t, detection.Box{X1: 50, Y1: 50, X2: 70, Y2: 80}, res.Boxes[0])
	assert.Equal(t, detection.Box{X1: 0, Y1: 0, X2: 25, Y2: 50}, res.Boxes[1])
	assert.Equal(t, []string{"U+306F", "U+3044"}, res.Labels)
	assert.Equal(t, []int{0, 2}, res.Keep)
}

func TestCenterCrop_Deterministic(t *testing.T) {
	page := newPage(640, 480)
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			page.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	boxes := []detection.Box{
		{X1: 250, Y1: 180, X2: 270, Y2: 210},
		{X1: 0, Y1: 0, X2: 30, Y2: 30},
		{X1: 150, Y1: 200, X2: 190, Y2: 240},
	}
	labels := []string{"U+306F", "U+304B", "U+3044"}

	tr, err := NewCenterCropAndResize(0.6, image.Pt(208, 208), DefaultMinVisibility)
	require.NoError(t, err)

	first, err := tr.Apply(page, boxes, labels)
	require.NoError(t, err)
	second, err := tr.Apply(page, boxes, labels)
	require.NoError(t, err)

	assert.Equal(t, first.Image.Pix, second.Image.Pix)
	assert.Equal(t, first.Boxes, second.Boxes)
	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.Keep, second.Keep)
	assert.Equal(t, first.Params, second.Params)
	assert.NotEmpty(t, first.Keep)
}

func TestCenterCrop_MinVisibilityDropsPartialBoxes(t *testing.T) {
	tr, err := NewCenterCropAndResize(0.5, image.Pt(200, 200), 0.6)
	require.NoError(t, err)

	res, err := tr.Apply(newPage(800, 600),
		[]detection.Box{{X1: 150, Y1: 100, X2: 250, Y2: 200}}, []string{"U+3044"})
	require.NoError(t, err)
	assert.Empty(t, res.Boxes)
	assert.Empty(t, res.Labels)
	assert.Empty(t, res.Keep)
}

func TestCenterCrop_DropsDegenerateBoxes(t *testing.T) {
	tr, err := NewCenterCropAndResize(0.5, image.Pt(200, 200), 0)
	require.NoError(t, err)

	res, err := tr.Apply(newPage(800, 600),
		[]detection.Box{{X1: 300, Y1: 300, X2: 300, Y2: 320}}, []string{"U+3044"})
	require.NoError(t, err)
	assert.Empty(t, res.Boxes)
}

func TestCenterCrop_SmallImageClampsWindow(t *testing.T) {
	tr, err := NewCenterCropAndResize(0.5, image.Pt(200, 200), DefaultMinVisibility)
	require.NoError(t, err)

	res, err := tr.Apply(newPage(100, 50), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), res.Params.Window)
	assert.InDelta(t, 2.0, res.Params.ScaleX, 1e-12)
	assert.InDelta(t, 4.0, res.Params.ScaleY, 1e-12)
	assert.Equal(t, image.Rect(0, 0, 200, 200), res.Image.Bounds())
	assert.NotNil(t, res.Boxes)
}

func TestCrop_InputErrors(t *testing.T) {
	tr, err := NewCenterCropAndResize(0.5, image.Pt(200, 200), DefaultMinVisibility)
	require.NoError(t, err)

	_, err = tr.Apply(newPage(100, 100), []detection.Box{{X1: 0, Y1: 0, X2: 1, Y2: 1}}, nil)
	assert.Error(t, err)

	_, err = tr.Apply(newPage(0, 0), nil, nil)
	assert.Error(t, err)
}

func TestRandomCrop_WindowWithinBounds(t *testing.T) {
	scales := ScaleRange{Min: 0.35, Max: 0.65}
	tr, err := NewRandomCropAndResize(scales, image.Pt(416, 416), DefaultMinVisibility, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	page := newPage(3000, 2000)
	bounds := page.Bounds()
	for i := 0; i < 20; i++ {
		res, err := tr.Apply(page, nil, nil)
		require.NoError(t, err)

		w := res.Params.Window
		assert.True(t, w.In(bounds), "window %v outside page", w)
		assert.GreaterOrEqual(t, w.Dx(), 640)
		assert.LessOrEqual(t, w.Dx(), 1189)
		assert.Equal(t, w.Dx(), w.Dy())
		assert.Equal(t, image.Rect(0, 0, 416, 416), res.Image.Bounds())
	}
}

func TestRandomCrop_SeededIsDeterministic(t *testing.T) {
	scales := ScaleRange{Min: 0.35, Max: 0.65}
	a, err := NewRandomCropAndResize(scales, image.Pt(64, 64), DefaultMinVisibility, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := NewRandomCropAndResize(scales, image.Pt(64, 64), DefaultMinVisibility, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	page := newPage(500, 400)
	for i := 0; i < 5; i++ {
		ra, err := a.Apply(page, nil, nil)
		require.NoError(t, err)
		rb, err := b.Apply(page, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, ra.Params, rb.Params)
	}
}

func TestCropParams_RoundTrip(t *testing.T) {
	p := CropParams{Window: image.Rect(120, 80, 920, 880), ScaleX: 0.52, ScaleY: 0.52}
	b := detection.Box{X1: 300, Y1: 410, X2: 331, Y2: 452}

	back := p.ToOriginal(p.FromOriginal(b))
	assert.InDelta(t, b.X1, back.X1, 1e-9)
	assert.InDelta(t, b.Y1, back.Y1, 1e-9)
	assert.InDelta(t, b.X2, back.X2, 1e-9)
	assert.InDelta(t, b.Y2, back.Y2, 1e-9)

	dets := p.DetectionsToOriginal([]detection.Detection{
		{Box: p.FromOriginal(b), Label: 0, Score: 0.8},
	})
	require.Len(t, dets, 1)
	assert.InDelta(t, b.X1, dets[0].Box.X1, 1e-9)
	assert.Equal(t, 0.8, dets[0].Score)
}
