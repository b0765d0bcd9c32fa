// Package analyzer grades still images with the same quality pipeline the
// live session uses, so uploads are held to the camera's standard.
package analyzer

import (
	"fmt"
	"image"

	"github.com/menta2k/skin-analyzer/pkg/quality"
	"github.com/menta2k/skin-analyzer/pkg/sampler"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// ImageAnalyzer runs sampler, evaluator and classifier over one image
type ImageAnalyzer struct {
	config     Config
	sampler    *sampler.Sampler
	evaluator  *quality.Evaluator
	classifier *quality.Classifier
}

// Config holds configuration for the image analyzer
type Config struct {
	Sampler    sampler.Config
	Evaluator  quality.EvaluatorConfig
	Thresholds quality.Thresholds
	// MinImageSize is the smallest accepted side in pixels
	MinImageSize int
}

// DefaultConfig mirrors the live capture screen
func DefaultConfig() Config {
	return Config{
		Sampler:      sampler.Config{Width: sampler.DefaultWidth, Height: sampler.DefaultHeight},
		Evaluator:    quality.DefaultEvaluatorConfig(),
		Thresholds:   quality.DefaultThresholds(),
		MinImageSize: 200,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	a, _ := NewWithConfig(DefaultConfig())
	return a
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) (*ImageAnalyzer, error) {
	if err := config.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if config.Evaluator == (quality.EvaluatorConfig{}) {
		config.Evaluator = quality.DefaultEvaluatorConfig()
	}
	return &ImageAnalyzer{
		config:     config,
		sampler:    sampler.NewWithConfig(config.Sampler),
		evaluator:  quality.NewEvaluatorWithConfig(config.Evaluator),
		classifier: quality.NewClassifierWithThresholds(config.Thresholds),
	}, nil
}

// Config returns the analyzer settings
func (a *ImageAnalyzer) Config() Config {
	return a.config
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// Report is the quality assessment of one image
type Report struct {
	Info    ImageInfo            `json:"info"`
	Sample  types.QualitySample  `json:"sample"`
	Verdict types.QualityVerdict `json:"verdict"`
	Ready   bool                 `json:"ready"`
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{Width: width, Height: height, Area: width * height}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return types.InvalidImagef("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// Inspect grades lighting and face placement of img. Images below
// MinImageSize are rejected with ErrInvalidImage.
func (a *ImageAnalyzer) Inspect(img image.Image) (Report, error) {
	if img == nil || img.Bounds().Empty() {
		return Report{}, fmt.Errorf("%w: empty image", types.ErrInvalidImage)
	}
	if err := a.ValidateImage(img); err != nil {
		return Report{}, err
	}

	frame := a.sampler.Sample(img)
	sample := a.evaluator.Evaluate(frame)
	verdict := a.classifier.Classify(sample)

	return Report{
		Info:    a.GetImageInfo(img),
		Sample:  sample,
		Verdict: verdict,
		Ready:   verdict.Ready(),
	}, nil
}
