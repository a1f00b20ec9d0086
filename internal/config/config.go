// Package config loads server and pipeline settings from a YAML or JSON file
// with KUZUSHIJI_* environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/kuzushiji-mcp/internal/dataset"
	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
	"github.com/ironsheep/kuzushiji-mcp/internal/imaging"
	"github.com/ironsheep/kuzushiji-mcp/internal/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. KUZUSHIJI_LOG_LEVEL
// or KUZUSHIJI_DETECTOR_THRESHOLD.
const EnvPrefix = "KUZUSHIJI"

// Config is the full runtime configuration.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=trace debug info warn warning error"`

	// CacheCapacity bounds the decoded-image cache; 0 disables eviction.
	CacheCapacity int `yaml:"cache_capacity" json:"cache_capacity" validate:"gte=0"`

	Dataset  dataset.Config `yaml:"dataset" json:"dataset"`
	Detector DetectorConfig `yaml:"detector" json:"detector"`
	Eval     EvalConfig     `yaml:"eval" json:"eval"`
}

// DetectorConfig describes the working frame and the heatmap codec.
type DetectorConfig struct {
	InputSize     int     `yaml:"input_size" json:"input_size" validate:"gt=0"`
	ScaleMin      float64 `yaml:"scale_min" json:"scale_min" validate:"gt=0"`
	ScaleMax      float64 `yaml:"scale_max" json:"scale_max" validate:"gtefield=ScaleMin"`
	MinVisibility float64 `yaml:"min_visibility" json:"min_visibility" validate:"gte=0,lte=1"`
	MinOverlap    float64 `yaml:"min_overlap" json:"min_overlap" validate:"gt=0,lt=1"`
	Threshold     float64 `yaml:"threshold" json:"threshold" validate:"gt=0,lte=1"`
	TopK          int     `yaml:"top_k" json:"top_k"`
	KernelSize    int     `yaml:"kernel_size" json:"kernel_size" validate:"gt=0"`
	BoxSize       float64 `yaml:"box_size" json:"box_size" validate:"gt=0"` // Nominal box edge in heatmap cells
}

// EvalConfig controls mAP evaluation.
type EvalConfig struct {
	IoUThreshold  float64 `yaml:"iou_threshold" json:"iou_threshold" validate:"gt=0,lte=1"`
	Interpolation string  `yaml:"interpolation" json:"interpolation" validate:"oneof=all-point 11-point"`
	Workers       int     `yaml:"workers" json:"workers" validate:"gt=0"`
	ValSize       int     `yaml:"val_size" json:"val_size" validate:"gte=0"` // Pages drawn from the val split; 0 means all
	Seed          int64   `yaml:"seed" json:"seed"`
}

// Default returns the settings used to train and evaluate the detector.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		CacheCapacity: imaging.DefaultCacheCapacity,
		Detector: DetectorConfig{
			InputSize:     416,
			ScaleMin:      0.35,
			ScaleMax:      0.65,
			MinVisibility: imaging.DefaultMinVisibility,
			MinOverlap:    detection.DefaultMinOverlap,
			Threshold:     0.3,
			TopK:          1000,
			KernelSize:    3,
			BoxSize:       detection.DefaultBoxSize.W,
		},
		Eval: EvalConfig{
			IoUThreshold:  detection.DefaultIoUThreshold,
			Interpolation: string(detection.AllPoint),
			Workers:       4,
			ValSize:       160,
			Seed:          0,
		},
	}
}

var validate = validator.New()

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Detector.KernelSize%2 == 0 {
		return fmt.Errorf("invalid configuration: detector.kernel_size must be odd, got %d", c.Detector.KernelSize)
	}
	if c.Detector.InputSize%detection.Stride != 0 {
		return fmt.Errorf("invalid configuration: detector.input_size %d is not a multiple of stride %d",
			c.Detector.InputSize, detection.Stride)
	}
	return nil
}

// Level parses LogLevel for logrus.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(strings.ToLower(c.LogLevel))
}

// ScaleRange returns the crop scale range.
func (d DetectorConfig) ScaleRange() imaging.ScaleRange {
	return imaging.ScaleRange{Min: d.ScaleMin, Max: d.ScaleMax}
}

// Pipeline returns the working-frame geometry for preprocessing and
// detection.
func (d DetectorConfig) Pipeline() pipeline.Options {
	return pipeline.Options{
		Scales:        d.ScaleRange(),
		InputSize:     d.InputSize,
		MinVisibility: d.MinVisibility,
		MinOverlap:    d.MinOverlap,
	}
}

// HeatmapSize returns the heatmap edge length in cells.
func (d DetectorConfig) HeatmapSize() int {
	return d.InputSize / detection.Stride
}

// Decoder builds a heatmap decoder from the settings.
func (d DetectorConfig) Decoder() *detection.Decoder {
	dec := detection.NewDecoder(d.Threshold, d.TopK)
	dec.KernelSize = d.KernelSize
	dec.Sizes = detection.FixedSize{W: d.BoxSize, H: d.BoxSize}
	return dec
}

// Evaluator builds an empty evaluator from the settings.
func (e EvalConfig) Evaluator() (*detection.Evaluator, error) {
	ev, err := detection.NewEvaluator(e.IoUThreshold)
	if err != nil {
		return nil, err
	}
	ev.Interpolation = detection.Interpolation(e.Interpolation)
	return ev, nil
}
