package sampler

import (
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Default analysis raster. Evaluation cost grows linearly with pixel count.
const (
	DefaultWidth  = 160
	DefaultHeight = 120
)

// Sampler downsamples camera frames to a small raster for cheap quality checks
type Sampler struct {
	config Config
}

// Config holds the target raster size
type Config struct {
	Width  int
	Height int
	// Filter is the resampling filter; imaging.Box is used when nil
	Filter *imaging.ResampleFilter
}

// New creates a Sampler producing 160x120 frames
func New() *Sampler {
	return &Sampler{config: Config{Width: DefaultWidth, Height: DefaultHeight}}
}

// NewWithConfig creates a Sampler with a custom raster size
func NewWithConfig(config Config) *Sampler {
	if config.Width <= 0 {
		config.Width = DefaultWidth
	}
	if config.Height <= 0 {
		config.Height = DefaultHeight
	}
	return &Sampler{config: config}
}

// Size returns the raster size produced by Sample
func (s *Sampler) Size() (int, int) {
	return s.config.Width, s.config.Height
}

// Sample stretches img to the configured raster, the same way a preview canvas
// draws the whole video frame into a fixed-size buffer.
func (s *Sampler) Sample(img image.Image) types.Frame {
	filter := imaging.Box
	if s.config.Filter != nil {
		filter = *s.config.Filter
	}

	b := img.Bounds()
	var small *image.NRGBA
	if b.Dx() == s.config.Width && b.Dy() == s.config.Height {
		small = imaging.Clone(img)
	} else {
		small = imaging.Resize(img, s.config.Width, s.config.Height, filter)
	}
	return frameFromNRGBA(small)
}

// FromImage converts an image to a Frame at its native resolution
func FromImage(img image.Image) types.Frame {
	return frameFromNRGBA(imaging.Clone(img))
}

func frameFromNRGBA(img *image.NRGBA) types.Frame {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pix := img.Pix
	// imaging may hand back a buffer with padded rows
	if img.Stride != w*4 {
		pix = make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			copy(pix[y*w*4:(y+1)*w*4], img.Pix[y*img.Stride:y*img.Stride+w*4])
		}
	}
	return types.Frame{
		Width:      w,
		Height:     h,
		Pix:        pix,
		CapturedAt: time.Now(),
	}
}
