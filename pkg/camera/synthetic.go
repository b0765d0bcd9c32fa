package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Colors of the generated scene
var (
	SkinColor       = color.NRGBA{200, 150, 120, 255}
	BackgroundColor = color.NRGBA{100, 100, 160, 255}
)

// FaceScene draws a skin-toned ellipse centered on a background. scale is the
// face size relative to the default guide ellipse (0.35W x 0.48H).
func FaceScene(width, height int, scale float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	rx := 0.35 * float64(width) * scale
	ry := 0.48 * float64(height) * scale
	cx, cy := float64(width)/2, float64(height)/2

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := BackgroundColor
			if rx > 0 && ry > 0 {
				dx := (float64(x) - cx) / rx
				dy := (float64(y) - cy) / ry
				if dx*dx+dy*dy <= 1 {
					c = SkinColor
				}
			}
			i := img.PixOffset(x, y)
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
	}
	return img
}

// SolidScene fills a frame with one color
func SolidScene(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// FrameFunc returns the n-th frame (n starts at 0) of a synthetic stream
type FrameFunc func(n int) (image.Image, error)

// SyntheticSource generates frames in memory, for demos and tests
type SyntheticSource struct {
	width  int
	height int
	frames FrameFunc

	// OpenErr, when set, makes Open fail with ErrCameraAccess
	OpenErr error

	mu     sync.Mutex
	open   bool
	n      int
	opens  int
	closes int
}

// NewSyntheticSource creates a synthetic source. A nil frames func yields a
// well-framed face on every read.
func NewSyntheticSource(width, height int, frames FrameFunc) *SyntheticSource {
	if frames == nil {
		face := FaceScene(width, height, 1.0)
		frames = func(int) (image.Image, error) { return face, nil }
	}
	return &SyntheticSource{width: width, height: height, frames: frames}
}

// Script returns a FrameFunc replaying images in order, repeating the last one
func Script(images ...image.Image) FrameFunc {
	return func(n int) (image.Image, error) {
		if len(images) == 0 {
			return nil, fmt.Errorf("%w: empty script", types.ErrCaptureFailed)
		}
		if n >= len(images) {
			n = len(images) - 1
		}
		return images[n], nil
	}
}

func (s *SyntheticSource) Name() string {
	return fmt.Sprintf("synthetic:%dx%d", s.width, s.height)
}

func (s *SyntheticSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return fmt.Errorf("%w: %v", types.ErrCameraAccess, s.OpenErr)
	}
	s.open = true
	s.n = 0
	s.opens++
	return nil
}

func (s *SyntheticSource) Read(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: source not open", types.ErrCaptureFailed)
	}
	n := s.n
	s.n++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.frames(n)
}

func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.open = false
		s.closes++
	}
	return nil
}

// IsOpen reports whether the source is currently held
func (s *SyntheticSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Reads returns the number of frames read since the last Open
func (s *SyntheticSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
