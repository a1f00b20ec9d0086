package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
	"github.com/ironsheep/kuzushiji-mcp/internal/imaging"
)

// Predictor runs the trained detector on a working-frame image and returns
// its post-sigmoid center heatmap. Implementations must be safe for
// concurrent use when shared by a MapEvaluator with more than one worker.
type Predictor interface {
	Predict(ctx context.Context, img image.Image) (*detection.Heatmap, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, img image.Image) (*detection.Heatmap, error)

// Predict implements Predictor.
func (f PredictorFunc) Predict(ctx context.Context, img image.Image) (*detection.Heatmap, error) {
	return f(ctx, img)
}

// Detector runs inference on whole pages.
type Detector struct {
	Crop      *imaging.CenterCropAndResize
	Predictor Predictor
	Decoder   *detection.Decoder
}

// NewDetector builds a detector that center-crops at the midpoint of
// opts.Scales into an opts.InputSize square.
func NewDetector(p Predictor, dec *detection.Decoder, opts Options) (*Detector, error) {
	if p == nil {
		return nil, fmt.Errorf("predictor is required")
	}
	if dec == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	crop, err := imaging.NewCenterCropAndResize(opts.Scales.Mid(), opts.size(), opts.MinVisibility)
	if err != nil {
		return nil, err
	}
	return &Detector{Crop: crop, Predictor: p, Decoder: dec}, nil
}

// Detect returns detections on img in page pixels, best first.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]detection.Detection, error) {
	res, err := d.Crop.Apply(img, nil, nil)
	if err != nil {
		return nil, err
	}
	heat, err := d.Predictor.Predict(ctx, res.Image)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	dets, err := d.Decoder.Decode(heat)
	if err != nil {
		return nil, err
	}
	return res.Params.DetectionsToOriginal(dets), nil
}
