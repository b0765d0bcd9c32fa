package types

import (
	"image"
	"time"
)

// Frame is a rectangular RGBA pixel buffer captured at a point in time.
// Pix holds Width*Height*4 bytes, row-major, non-premultiplied.
type Frame struct {
	Width      int
	Height     int
	Pix        []byte
	CapturedAt time.Time
}

// Bounds returns the frame rectangle anchored at the origin
func (f Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Image returns an image view sharing the frame's pixel buffer
func (f Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   f.Bounds(),
	}
}

// Stride returns the number of bytes per row
func (f Frame) Stride() int {
	return f.Width * 4
}

// QualitySample holds the lighting and placement signals computed from one frame.
// All ratios are in [0,1].
type QualitySample struct {
	LightingScore      float64 `json:"lighting_score"`
	OverexposureRatio  float64 `json:"overexposure_ratio"`
	UnderexposureRatio float64 `json:"underexposure_ratio"`
	FaceCoverageRatio  float64 `json:"face_coverage_ratio"`
	EllipsePixels      int     `json:"ellipse_pixels"`
}

// Level is a three-way quality grade
type Level int

const (
	Good Level = iota
	Warning
	Bad
)

// String returns the lowercase name of the level
func (l Level) String() string {
	switch l {
	case Good:
		return "good"
	case Warning:
		return "warning"
	default:
		return "bad"
	}
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// QualityVerdict classifies a sample along the lighting and position axes
type QualityVerdict struct {
	Lighting Level `json:"lighting"`
	Position Level `json:"position"`
}

// Ready reports whether both axes are Good
func (v QualityVerdict) Ready() bool {
	return v.Lighting == Good && v.Position == Good
}

// ConcernStatus grades a single skin concern score
type ConcernStatus string

const (
	StatusExcellent        ConcernStatus = "excellent"
	StatusGood             ConcernStatus = "good"
	StatusNeedsImprovement ConcernStatus = "needs_improvement"
)

// StatusForScore maps a 0-100 concern score onto a status
func StatusForScore(score int) ConcernStatus {
	switch {
	case score >= 80:
		return StatusExcellent
	case score >= 60:
		return StatusGood
	default:
		return StatusNeedsImprovement
	}
}

// Concern is one scored skin feature
type Concern struct {
	Name        string        `json:"name"`
	Score       int           `json:"score"`
	Status      ConcernStatus `json:"status"`
	Improvement string        `json:"improvement,omitempty"`
}

// Provenance records where an analysis result came from
type Provenance struct {
	Source         string `json:"source"`
	Provider       string `json:"provider,omitempty"`
	Mock           bool   `json:"mock"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

const (
	SourceProvider = "provider"
	SourceMock     = "mock"
)

// AnalysisResult is the provider-independent outcome of one skin analysis.
// Values are not modified after they are returned to callers.
type AnalysisResult struct {
	ID              string     `json:"id"`
	OverallScore    int        `json:"overall_score"`
	SkinAge         int        `json:"skin_age"`
	Concerns        []Concern  `json:"concerns"`
	Recommendations []string   `json:"recommendations"`
	Provenance      Provenance `json:"provenance"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Clone returns a deep copy of the result
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Concerns = append([]Concern(nil), r.Concerns...)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	return &out
}

// ClampScore limits a score to the 0-100 range
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Concern names shared by providers, the mock generator and the presenter catalog
const (
	ConcernHydration    = "hydration"
	ConcernOil          = "oil"
	ConcernPores        = "pores"
	ConcernWrinkles     = "wrinkles"
	ConcernPigmentation = "pigmentation"
	ConcernAcne         = "acne"
	ConcernRedness      = "redness"
	ConcernDarkCircles  = "dark_circles"
	ConcernTexture      = "texture"
)

// KnownConcerns lists concern names in display order
var KnownConcerns = []string{
	ConcernHydration,
	ConcernOil,
	ConcernPores,
	ConcernWrinkles,
	ConcernPigmentation,
	ConcernAcne,
	ConcernRedness,
	ConcernDarkCircles,
	ConcernTexture,
}
