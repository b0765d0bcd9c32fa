//go:build !gst

package camera

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// gstUnavailable stands in for the webcam source in builds without GStreamer
type gstUnavailable struct {
	device string
}

// NewGstSource returns a source whose Open always fails; build with -tags gst for webcam capture
func NewGstSource(device string, width, height int, logger *zap.Logger) Source {
	return &gstUnavailable{device: device}
}

func (g *gstUnavailable) Name() string { return "webcam:" + g.device }

func (g *gstUnavailable) Open(ctx context.Context) error {
	return fmt.Errorf("%w: webcam support not compiled in (rebuild with -tags gst)", types.ErrCameraAccess)
}

func (g *gstUnavailable) Read(ctx context.Context) (image.Image, error) {
	return nil, fmt.Errorf("%w: source not open", types.ErrCaptureFailed)
}

func (g *gstUnavailable) Close() error { return nil }
