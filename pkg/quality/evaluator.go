package quality

import (
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Evaluator computes lighting and face-placement signals inside the face guide ellipse
type Evaluator struct {
	config EvaluatorConfig
}

// EvaluatorConfig holds the guide geometry and the pixel classification thresholds
type EvaluatorConfig struct {
	// Ellipse radii as fractions of frame width and height
	RadiusX float64
	RadiusY float64

	OverexposedLuma  float64
	UnderexposedLuma float64

	// Skin-tone heuristic: luma strictly within (SkinLumaMin, SkinLumaMax)
	// and R > SkinMinR, G > SkinMinG, B > SkinMinB, R > B.
	SkinLumaMin float64
	SkinLumaMax float64
	SkinMinR    uint8
	SkinMinG    uint8
	SkinMinB    uint8
}

// DefaultEvaluatorConfig returns the guide used by the capture screen
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		RadiusX:          0.35,
		RadiusY:          0.48,
		OverexposedLuma:  230,
		UnderexposedLuma: 30,
		SkinLumaMin:      60,
		SkinLumaMax:      220,
		SkinMinR:         80,
		SkinMinG:         60,
		SkinMinB:         50,
	}
}

// NewEvaluator creates an Evaluator with the default guide
func NewEvaluator() *Evaluator {
	return &Evaluator{config: DefaultEvaluatorConfig()}
}

// NewEvaluatorWithConfig creates an Evaluator with a custom guide
func NewEvaluatorWithConfig(config EvaluatorConfig) *Evaluator {
	return &Evaluator{config: config}
}

// Luma returns the Rec. 601 luma of an 8-bit RGB triple
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// InEllipse reports whether pixel (x, y) lies inside the guide ellipse of a w×h frame
func (e *Evaluator) InEllipse(x, y, w, h int) bool {
	rx := e.config.RadiusX * float64(w)
	ry := e.config.RadiusY * float64(h)
	if rx <= 0 || ry <= 0 {
		return false
	}
	dx := (float64(x) - float64(w)/2) / rx
	dy := (float64(y) - float64(h)/2) / ry
	return dx*dx+dy*dy <= 1
}

// Evaluate computes a QualitySample from one frame. It is pure and deterministic.
func (e *Evaluator) Evaluate(frame types.Frame) types.QualitySample {
	w, h := frame.Width, frame.Height
	if w <= 0 || h <= 0 || len(frame.Pix) < w*h*4 {
		return types.QualitySample{}
	}

	var (
		count, over, under, face int
		lumaSum                  float64
	)

	stride := frame.Stride()
	for y := 0; y < h; y++ {
		row := frame.Pix[y*stride : (y+1)*stride]
		for x := 0; x < w; x++ {
			if !e.InEllipse(x, y, w, h) {
				continue
			}
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			luma := Luma(r, g, b)

			count++
			lumaSum += luma
			if luma > e.config.OverexposedLuma {
				over++
			}
			if luma < e.config.UnderexposedLuma {
				under++
			}
			if e.isSkinLike(r, g, b, luma) {
				face++
			}
		}
	}

	if count == 0 {
		return types.QualitySample{}
	}

	n := float64(count)
	return types.QualitySample{
		LightingScore:      clamp01(lumaSum / n / 255),
		OverexposureRatio:  float64(over) / n,
		UnderexposureRatio: float64(under) / n,
		FaceCoverageRatio:  float64(face) / n,
		EllipsePixels:      count,
	}
}

func (e *Evaluator) isSkinLike(r, g, b uint8, luma float64) bool {
	c := e.config
	return luma > c.SkinLumaMin && luma < c.SkinLumaMax &&
		r > c.SkinMinR && g > c.SkinMinG && b > c.SkinMinB && r > b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
