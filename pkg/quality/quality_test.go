package quality

import (
	"math"
	"testing"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

var (
	skinTone   = [3]uint8{200, 150, 120}
	background = [3]uint8{100, 100, 160}
)

// solidFrame creates a frame filled with one color
func solidFrame(width, height int, c [3]uint8) types.Frame {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c[0], c[1], c[2], 255
	}
	return types.Frame{Width: width, Height: height, Pix: pix}
}

// faceFrame paints a skin-toned ellipse concentric with the guide, scaled by k
func faceFrame(width, height int, k float64) types.Frame {
	f := solidFrame(width, height, background)
	rx := 0.35 * float64(width) * k
	ry := 0.48 * float64(height) * k
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := (float64(x) - float64(width)/2) / rx
			dy := (float64(y) - float64(height)/2) / ry
			if dx*dx+dy*dy <= 1 {
				i := (y*width + x) * 4
				f.Pix[i], f.Pix[i+1], f.Pix[i+2] = skinTone[0], skinTone[1], skinTone[2]
			}
		}
	}
	return f
}

func TestLuma(t *testing.T) {
	if got := Luma(255, 255, 255); math.Abs(got-255) > 1e-9 {
		t.Errorf("Expected luma 255 for white, got %f", got)
	}
	if got := Luma(0, 0, 0); got != 0 {
		t.Errorf("Expected luma 0 for black, got %f", got)
	}
	if got := Luma(200, 150, 120); math.Abs(got-161.53) > 0.01 {
		t.Errorf("Expected luma ~161.53, got %f", got)
	}
}

func TestEvaluateBlackFrame(t *testing.T) {
	e := NewEvaluator()
	s := e.Evaluate(solidFrame(160, 120, [3]uint8{0, 0, 0}))

	if s.LightingScore != 0 {
		t.Errorf("Expected lighting 0, got %f", s.LightingScore)
	}
	if s.UnderexposureRatio != 1 {
		t.Errorf("Expected underexposure 1, got %f", s.UnderexposureRatio)
	}
	if s.FaceCoverageRatio != 0 {
		t.Errorf("Expected no face coverage, got %f", s.FaceCoverageRatio)
	}
	if v := NewClassifier().Classify(s); v.Lighting != types.Bad {
		t.Errorf("Expected Bad lighting for black frame, got %s", v.Lighting)
	}
}

func TestEvaluateWhiteFrame(t *testing.T) {
	e := NewEvaluator()
	s := e.Evaluate(solidFrame(160, 120, [3]uint8{255, 255, 255}))

	if math.Abs(s.LightingScore-1) > 1e-9 {
		t.Errorf("Expected lighting 1, got %f", s.LightingScore)
	}
	if s.OverexposureRatio != 1 {
		t.Errorf("Expected overexposure 1, got %f", s.OverexposureRatio)
	}
	if v := NewClassifier().Classify(s); v.Lighting != types.Bad {
		t.Errorf("Expected Bad lighting for white frame, got %s", v.Lighting)
	}
}

func TestEvaluateFaceCoverage(t *testing.T) {
	e := NewEvaluator()
	c := NewClassifier()

	tests := []struct {
		name     string
		scale    float64
		position types.Level
	}{
		{"full guide", 1.2, types.Good},
		{"large face", 0.85, types.Good},
		{"medium face", 0.7, types.Warning},
		{"small face", 0.5, types.Bad},
		{"no face", 0.0001, types.Bad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := e.Evaluate(faceFrame(160, 120, tt.scale))
			v := c.Classify(s)
			if v.Position != tt.position {
				t.Errorf("coverage %.3f: expected %s, got %s", s.FaceCoverageRatio, tt.position, v.Position)
			}
		})
	}
}

func TestEvaluateGoodFaceIsReady(t *testing.T) {
	s := NewEvaluator().Evaluate(faceFrame(160, 120, 1.2))
	v := NewClassifier().Classify(s)
	if !v.Ready() {
		t.Errorf("Expected Good/Good for well-lit full face, got %s/%s (sample %+v)", v.Lighting, v.Position, s)
	}
}

func TestEvaluateDegenerateFrames(t *testing.T) {
	e := NewEvaluator()
	for _, f := range []types.Frame{
		{},
		{Width: 1, Height: 1, Pix: []byte{255, 255, 255, 255}},
		{Width: 10, Height: 10, Pix: nil},
	} {
		s := e.Evaluate(f)
		if s != (types.QualitySample{}) {
			t.Errorf("Expected zero sample for %dx%d frame, got %+v", f.Width, f.Height, s)
		}
	}
}

func TestEvaluateRatiosBounded(t *testing.T) {
	e := NewEvaluator()
	for _, f := range []types.Frame{
		faceFrame(64, 48, 0.9),
		solidFrame(33, 17, [3]uint8{240, 240, 240}),
		solidFrame(160, 120, [3]uint8{15, 15, 15}),
	} {
		s := e.Evaluate(f)
		for name, v := range map[string]float64{
			"lighting": s.LightingScore,
			"over":     s.OverexposureRatio,
			"under":    s.UnderexposureRatio,
			"coverage": s.FaceCoverageRatio,
		} {
			if v < 0 || v > 1 {
				t.Errorf("%s ratio out of range: %f", name, v)
			}
		}
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	e := NewEvaluator()
	f := faceFrame(160, 120, 0.8)
	if a, b := e.Evaluate(f), e.Evaluate(f); a != b {
		t.Errorf("Expected identical samples, got %+v and %+v", a, b)
	}
}

func TestClassifyLightingBoundaries(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name   string
		sample types.QualitySample
		want   types.Level
	}{
		{"low edge of good", types.QualitySample{LightingScore: 0.40}, types.Good},
		{"high edge of good", types.QualitySample{LightingScore: 0.75}, types.Good},
		{"slightly dark", types.QualitySample{LightingScore: 0.39}, types.Warning},
		{"slightly bright", types.QualitySample{LightingScore: 0.76}, types.Warning},
		{"too dark", types.QualitySample{LightingScore: 0.24}, types.Bad},
		{"minimum", types.QualitySample{LightingScore: 0.25}, types.Warning},
		{"overexposed patches", types.QualitySample{LightingScore: 0.5, OverexposureRatio: 0.21}, types.Bad},
		{"overexposure at limit", types.QualitySample{LightingScore: 0.5, OverexposureRatio: 0.20}, types.Good},
		{"underexposed patches", types.QualitySample{LightingScore: 0.5, UnderexposureRatio: 0.31}, types.Bad},
		{"nan", types.QualitySample{LightingScore: math.NaN()}, types.Bad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.sample).Lighting; got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassifyPositionBoundaries(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		coverage float64
		want     types.Level
	}{
		{1.0, types.Good},
		{0.60, types.Good},
		{0.5999, types.Warning},
		{0.35, types.Warning},
		{0.3499, types.Bad},
		{0, types.Bad},
		{math.NaN(), types.Bad},
	}

	for _, tt := range tests {
		got := c.Classify(types.QualitySample{FaceCoverageRatio: tt.coverage}).Position
		if got != tt.want {
			t.Errorf("coverage %v: expected %s, got %s", tt.coverage, tt.want, got)
		}
	}
}

func TestClassifyIsTotal(t *testing.T) {
	c := NewClassifier()
	values := []float64{-1, 0, 0.1, 0.2, 0.25, 0.3, 0.35, 0.4, 0.6, 0.75, 0.9, 1, 2, math.Inf(1), math.NaN()}

	valid := func(l types.Level) bool {
		return l == types.Good || l == types.Warning || l == types.Bad
	}

	for _, light := range values {
		for _, over := range values {
			for _, cov := range values {
				v := c.Classify(types.QualitySample{
					LightingScore:      light,
					OverexposureRatio:  over,
					UnderexposureRatio: over,
					FaceCoverageRatio:  cov,
				})
				if !valid(v.Lighting) || !valid(v.Position) {
					t.Fatalf("Undefined verdict %+v for light=%v over=%v cov=%v", v, light, over, cov)
				}
			}
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := NewClassifier()
	s := types.QualitySample{LightingScore: 0.55, OverexposureRatio: 0.05, FaceCoverageRatio: 0.42}
	if a, b := c.Classify(s), c.Classify(s); a != b {
		t.Errorf("Expected identical verdicts, got %+v and %+v", a, b)
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("Default thresholds should be valid: %v", err)
	}

	bad := DefaultThresholds()
	bad.WarnCoverage = 0.9
	if err := bad.Validate(); err == nil {
		t.Error("Expected error when warn coverage exceeds good coverage")
	}

	bad = DefaultThresholds()
	bad.MinLighting = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for out-of-range value")
	}
}

func BenchmarkEvaluate(b *testing.B) {
	e := NewEvaluator()
	f := faceFrame(160, 120, 0.9)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Evaluate(f)
	}
}
