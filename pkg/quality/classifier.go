package quality

import (
	"math"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Thresholds drive the lighting and position verdicts
type Thresholds struct {
	MaxOverexposure  float64 `json:"max_overexposure" mapstructure:"max_overexposure"`
	MaxUnderexposure float64 `json:"max_underexposure" mapstructure:"max_underexposure"`
	MinLighting      float64 `json:"min_lighting" mapstructure:"min_lighting"`
	GoodLightingLow  float64 `json:"good_lighting_low" mapstructure:"good_lighting_low"`
	GoodLightingHigh float64 `json:"good_lighting_high" mapstructure:"good_lighting_high"`
	GoodCoverage     float64 `json:"good_coverage" mapstructure:"good_coverage"`
	WarnCoverage     float64 `json:"warn_coverage" mapstructure:"warn_coverage"`
}

// DefaultThresholds returns the thresholds of the live capture screen
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxOverexposure:  0.20,
		MaxUnderexposure: 0.30,
		MinLighting:      0.25,
		GoodLightingLow:  0.40,
		GoodLightingHigh: 0.75,
		GoodCoverage:     0.60,
		WarnCoverage:     0.35,
	}
}

// Classifier maps quality samples onto verdicts
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a Classifier with default thresholds
func NewClassifier() *Classifier {
	return &Classifier{thresholds: DefaultThresholds()}
}

// NewClassifierWithThresholds creates a Classifier with custom thresholds
func NewClassifierWithThresholds(t Thresholds) *Classifier {
	return &Classifier{thresholds: t}
}

// Thresholds returns the active thresholds
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify returns exactly one level per axis for any sample
func (c *Classifier) Classify(s types.QualitySample) types.QualityVerdict {
	return types.QualityVerdict{
		Lighting: c.lighting(s),
		Position: c.position(s.FaceCoverageRatio),
	}
}

func (c *Classifier) lighting(s types.QualitySample) types.Level {
	t := c.thresholds
	if math.IsNaN(s.LightingScore) || math.IsNaN(s.OverexposureRatio) || math.IsNaN(s.UnderexposureRatio) {
		return types.Bad
	}
	switch {
	case s.OverexposureRatio > t.MaxOverexposure,
		s.UnderexposureRatio > t.MaxUnderexposure,
		s.LightingScore < t.MinLighting:
		return types.Bad
	case s.LightingScore < t.GoodLightingLow, s.LightingScore > t.GoodLightingHigh:
		return types.Warning
	default:
		return types.Good
	}
}

func (c *Classifier) position(coverage float64) types.Level {
	switch {
	case math.IsNaN(coverage):
		return types.Bad
	case coverage >= c.thresholds.GoodCoverage:
		return types.Good
	case coverage >= c.thresholds.WarnCoverage:
		return types.Warning
	default:
		return types.Bad
	}
}

// Validate checks that the thresholds are ordered and within [0,1]
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"max_overexposure":   t.MaxOverexposure,
		"max_underexposure":  t.MaxUnderexposure,
		"min_lighting":       t.MinLighting,
		"good_lighting_low":  t.GoodLightingLow,
		"good_lighting_high": t.GoodLightingHigh,
		"good_coverage":      t.GoodCoverage,
		"warn_coverage":      t.WarnCoverage,
	} {
		if v < 0 || v > 1 {
			return &ThresholdError{Field: name, Reason: "must be between 0 and 1"}
		}
	}
	if t.GoodLightingLow > t.GoodLightingHigh {
		return &ThresholdError{Field: "good_lighting_low", Reason: "must not exceed good_lighting_high"}
	}
	if t.WarnCoverage > t.GoodCoverage {
		return &ThresholdError{Field: "warn_coverage", Reason: "must not exceed good_coverage"}
	}
	return nil
}

// ThresholdError reports an invalid threshold value
type ThresholdError struct {
	Field  string
	Reason string
}

func (e *ThresholdError) Error() string {
	return "quality." + e.Field + " " + e.Reason
}
