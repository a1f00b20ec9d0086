package imaging

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
)

// Construction errors for crop transforms.
var (
	ErrInvalidScaleRange = errors.New("invalid crop scale range")
	ErrInvalidSize       = errors.New("invalid crop output size")
	ErrInvalidVisibility = errors.New("invalid minimum visibility")
)

// DefaultMinVisibility is the fraction of a box's area that must survive
// clipping for the box to be kept.
const DefaultMinVisibility = 0.5

// ScaleRange bounds the resize factor of a random crop.
type ScaleRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Mid returns the midpoint of the range, the scale used at evaluation time.
func (r ScaleRange) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// Validate rejects empty, inverted or non-positive ranges.
func (r ScaleRange) Validate() error {
	if r.Min <= 0 || r.Max <= 0 || math.IsNaN(r.Min) || math.IsNaN(r.Max) {
		return fmt.Errorf("%w: scales must be positive, got [%v, %v]", ErrInvalidScaleRange, r.Min, r.Max)
	}
	if r.Min > r.Max {
		return fmt.Errorf("%w: min %v > max %v", ErrInvalidScaleRange, r.Min, r.Max)
	}
	return nil
}

// CropParams records how a crop transform mapped the source image into the
// working frame, so detections can be mapped back.
type CropParams struct {
	// Window is the crop rectangle in source-image pixels.
	Window image.Rectangle `json:"window"`

	// ScaleX and ScaleY are working-frame pixels per source pixel.
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
}

// FromOriginal maps a box from source-image pixels into the working frame.
func (p CropParams) FromOriginal(b detection.Box) detection.Box {
	ox, oy := float64(p.Window.Min.X), float64(p.Window.Min.Y)
	return detection.Box{
		X1: (b.X1 - ox) * p.ScaleX,
		Y1: (b.Y1 - oy) * p.ScaleY,
		X2: (b.X2 - ox) * p.ScaleX,
		Y2: (b.Y2 - oy) * p.ScaleY,
	}
}

// ToOriginal maps a box from the working frame back to source-image pixels.
func (p CropParams) ToOriginal(b detection.Box) detection.Box {
	ox, oy := float64(p.Window.Min.X), float64(p.Window.Min.Y)
	return detection.Box{
		X1: b.X1/p.ScaleX + ox,
		Y1: b.Y1/p.ScaleY + oy,
		X2: b.X2/p.ScaleX + ox,
		Y2: b.Y2/p.ScaleY + oy,
	}
}

// DetectionsToOriginal maps decoded detections back to source-image pixels.
func (p CropParams) DetectionsToOriginal(dets []detection.Detection) []detection.Detection {
	out := make([]detection.Detection, len(dets))
	for i, d := range dets {
		out[i] = d
		out[i].Box = p.ToOriginal(d.Box)
	}
	return out
}

// CropResult is the output of a crop transform.
type CropResult struct {
	// Image is the resized crop, exactly the configured output size.
	Image *image.NRGBA

	// Boxes are the surviving boxes clipped to the window, in working-frame
	// pixels.
	Boxes []detection.Box

	// Labels are the labels of the surviving boxes, in lockstep with Boxes.
	Labels []string

	// Keep holds the input index of every surviving box.
	Keep []int

	Params CropParams
}

// CropTransform maps a page and its boxes into the fixed working frame.
type CropTransform interface {
	Apply(img image.Image, boxes []detection.Box, labels []string) (*CropResult, error)
}

// cropAndResize holds the parts shared by the random and center variants.
type cropAndResize struct {
	width, height int
	minVisibility float64
}

func newCropAndResize(size image.Point, minVisibility float64) (cropAndResize, error) {
	if size.X <= 0 || size.Y <= 0 {
		return cropAndResize{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, size.X, size.Y)
	}
	if minVisibility < 0 || minVisibility > 1 || math.IsNaN(minVisibility) {
		return cropAndResize{}, fmt.Errorf("%w: %v not in [0, 1]", ErrInvalidVisibility, minVisibility)
	}
	return cropAndResize{width: size.X, height: size.Y, minVisibility: minVisibility}, nil
}

// windowSize returns the source-pixel extent covered at the given scale,
// clamped to the image so the crop is never empty.
func (c cropAndResize) windowSize(bounds image.Rectangle, scale float64) (int, int) {
	w := int(math.Round(float64(c.width) / scale))
	h := int(math.Round(float64(c.height) / scale))
	return clampInt(w, 1, bounds.Dx()), clampInt(h, 1, bounds.Dy())
}

func (c cropAndResize) apply(img image.Image, window image.Rectangle, boxes []detection.Box, labels []string) *CropResult {
	params := CropParams{
		Window: window,
		ScaleX: float64(c.width) / float64(window.Dx()),
		ScaleY: float64(c.height) / float64(window.Dy()),
	}

	cropped := imaging.Crop(img, window)
	resized := imaging.Resize(cropped, c.width, c.height, imaging.Linear)

	frame := detection.Box{
		X1: float64(window.Min.X),
		Y1: float64(window.Min.Y),
		X2: float64(window.Max.X),
		Y2: float64(window.Max.Y),
	}

	result := &CropResult{
		Image:  resized,
		Boxes:  make([]detection.Box, 0, len(boxes)),
		Labels: make([]string, 0, len(labels)),
		Keep:   make([]int, 0, len(boxes)),
		Params: params,
	}
	for i, b := range boxes {
		if !b.Valid() {
			continue
		}
		clipped := b.Intersect(frame)
		if !clipped.Valid() {
			continue
		}
		if clipped.Area()/b.Area() < c.minVisibility {
			continue
		}
		result.Boxes = append(result.Boxes, params.FromOriginal(clipped))
		result.Labels = append(result.Labels, labels[i])
		result.Keep = append(result.Keep, i)
	}
	return result
}

func checkInputs(img image.Image, boxes []detection.Box, labels []string) error {
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("cannot crop an empty image")
	}
	if len(boxes) != len(labels) {
		return fmt.Errorf("got %d boxes but %d labels", len(boxes), len(labels))
	}
	return nil
}

// RandomCropAndResize is the training-time transform: random scale within
// a range and a random window position.
type RandomCropAndResize struct {
	cropAndResize
	scales ScaleRange

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomCropAndResize validates the configuration up front.
//
// Parameters:
//   - scales: resize factor range; the window covers size/scale source pixels.
//   - size: working-frame size in pixels.
//   - minVisibility: fraction of a box that must remain after clipping.
//   - rng: random source; nil seeds one from the current time.
func NewRandomCropAndResize(scales ScaleRange, size image.Point, minVisibility float64, rng *rand.Rand) (*RandomCropAndResize, error) {
	if err := scales.Validate(); err != nil {
		return nil, err
	}
	base, err := newCropAndResize(size, minVisibility)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &RandomCropAndResize{cropAndResize: base, scales: scales, rng: rng}, nil
}

// Apply implements CropTransform. Safe for concurrent use.
func (t *RandomCropAndResize) Apply(img image.Image, boxes []detection.Box, labels []string) (*CropResult, error) {
	if err := checkInputs(img, boxes, labels); err != nil {
		return nil, err
	}
	bounds := img.Bounds()

	t.mu.Lock()
	scale := t.scales.Min + t.rng.Float64()*(t.scales.Max-t.scales.Min)
	w, h := t.windowSize(bounds, scale)
	x0 := bounds.Min.X + t.rng.Intn(bounds.Dx()-w+1)
	y0 := bounds.Min.Y + t.rng.Intn(bounds.Dy()-h+1)
	t.mu.Unlock()

	return t.apply(img, image.Rect(x0, y0, x0+w, y0+h), boxes, labels), nil
}

// CenterCropAndResize is the deterministic evaluation-time transform.
type CenterCropAndResize struct {
	cropAndResize
	scale float64
}

// NewCenterCropAndResize validates the configuration up front. Use
// ScaleRange.Mid to match a training range.
func NewCenterCropAndResize(scale float64, size image.Point, minVisibility float64) (*CenterCropAndResize, error) {
	if err := (ScaleRange{Min: scale, Max: scale}).Validate(); err != nil {
		return nil, err
	}
	base, err := newCropAndResize(size, minVisibility)
	if err != nil {
		return nil, err
	}
	return &CenterCropAndResize{cropAndResize: base, scale: scale}, nil
}

// Apply implements CropTransform.
func (t *CenterCropAndResize) Apply(img image.Image, boxes []detection.Box, labels []string) (*CropResult, error) {
	if err := checkInputs(img, boxes, labels); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	w, h := t.windowSize(bounds, t.scale)
	x0 := bounds.Min.X + (bounds.Dx()-w)/2
	y0 := bounds.Min.Y + (bounds.Dy()-h)/2
	return t.apply(img, image.Rect(x0, y0, x0+w, y0+h), boxes, labels), nil
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
