package pipeline

import (
	"fmt"
	"image"
	"math/rand"

	"github.com/ironsheep/kuzushiji-mcp/internal/dataset"
	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
	"github.com/ironsheep/kuzushiji-mcp/internal/imaging"
)

const (
	// DefaultInputSize is the working-frame edge length in pixels.
	DefaultInputSize = 416

	// CharacterClass is the only heatmap channel: every glyph is a
	// "character" to the detector, whatever its codepoint.
	CharacterClass = 0
)

// DefaultScaleRange is the crop scale range used for training.
var DefaultScaleRange = imaging.ScaleRange{Min: 0.35, Max: 0.65}

// Sample is one training example in the working frame.
type Sample struct {
	// Image is the normalised page crop in CHW order, 3 x Height x Width,
	// with values (v - 127.5) / 128.
	Image  []float32
	Height int
	Width  int

	Heatmap *detection.Heatmap
	Labels  []int
	Indices []int

	// Unicodes are the codepoints of the surviving boxes, in lockstep
	// with Labels.
	Unicodes []string

	Params imaging.CropParams
}

// Options is the working-frame geometry shared by preprocessing and
// detection.
type Options struct {
	Scales    imaging.ScaleRange
	InputSize int

	// MinVisibility is the fraction of a box that must survive the crop.
	MinVisibility float64

	// MinOverlap sets the Gaussian radius of encoded targets.
	MinOverlap float64
}

// DefaultOptions returns the geometry the detector is trained with.
func DefaultOptions() Options {
	return Options{
		Scales:        DefaultScaleRange,
		InputSize:     DefaultInputSize,
		MinVisibility: imaging.DefaultMinVisibility,
		MinOverlap:    detection.DefaultMinOverlap,
	}
}

func (o Options) validate() error {
	if o.InputSize <= 0 || o.InputSize%detection.Stride != 0 {
		return fmt.Errorf("input size %d must be a positive multiple of %d", o.InputSize, detection.Stride)
	}
	if o.MinOverlap <= 0 || o.MinOverlap >= 1 {
		return fmt.Errorf("min overlap %v not in (0, 1)", o.MinOverlap)
	}
	return o.Scales.Validate()
}

func (o Options) size() image.Point {
	return image.Pt(o.InputSize, o.InputSize)
}

// Preprocessor converts annotated pages into training samples.
type Preprocessor struct {
	crop    imaging.CropTransform
	encoder *detection.Encoder
	size    int
}

// NewPreprocessor builds the training (augmentation=true: random crop) or
// validation (augmentation=false: center crop at the range midpoint)
// variant. rng seeds the random crop and may be nil.
func NewPreprocessor(opts Options, augmentation bool, rng *rand.Rand) (*Preprocessor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var crop imaging.CropTransform
	var err error
	if augmentation {
		crop, err = imaging.NewRandomCropAndResize(opts.Scales, opts.size(), opts.MinVisibility, rng)
	} else {
		crop, err = imaging.NewCenterCropAndResize(opts.Scales.Mid(), opts.size(), opts.MinVisibility)
	}
	if err != nil {
		return nil, err
	}

	hm := opts.InputSize / detection.Stride
	enc, err := detection.NewEncoder(1, hm, hm)
	if err != nil {
		return nil, err
	}
	enc.MinOverlap = opts.MinOverlap
	return &Preprocessor{crop: crop, encoder: enc, size: opts.InputSize}, nil
}

// Process crops ex into the working frame and encodes its boxes.
func (p *Preprocessor) Process(ex *dataset.Example) (*Sample, error) {
	res, err := p.crop.Apply(ex.Image, ex.Boxes, ex.Unicodes)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", ex.ImageID, err)
	}

	scaled := make([]detection.Box, len(res.Boxes))
	labels := make([]int, len(res.Boxes))
	for i, b := range res.Boxes {
		scaled[i] = b.Scale(1.0 / detection.Stride)
		labels[i] = CharacterClass
	}
	target, err := p.encoder.Encode(scaled, labels)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", ex.ImageID, err)
	}

	return &Sample{
		Image:    Normalize(res.Image),
		Height:   p.size,
		Width:    p.size,
		Heatmap:  target.Heatmap,
		Labels:   target.Labels,
		Indices:  target.Indices,
		Unicodes: res.Labels,
		Params:   res.Params,
	}, nil
}

// Normalize converts an image to a CHW float32 RGB tensor scaled to about
// [-1, 1]. Alpha is ignored.
func Normalize(img *image.NRGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[4*x : 4*x+3]
			i := y*w + x
			out[i] = (float32(px[0]) - 127.5) / 128
			out[plane+i] = (float32(px[1]) - 127.5) / 128
			out[2*plane+i] = (float32(px[2]) - 127.5) / 128
		}
	}
	return out
}
