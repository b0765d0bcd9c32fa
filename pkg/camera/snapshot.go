package camera

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/processing"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// SnapshotSource polls an IP camera's still-image endpoint
type SnapshotSource struct {
	url       string
	processor *processing.Processor
	logger    *zap.Logger
	open      atomic.Bool
}

func NewSnapshotSource(url string, timeout time.Duration, logger *zap.Logger) *SnapshotSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotSource{
		url:       url,
		processor: processing.NewProcessorWithClient(&http.Client{Timeout: timeout}),
		logger:    logger,
	}
}

func (s *SnapshotSource) Name() string { return "snapshot:" + s.url }

// Open fetches one frame to prove the camera answers
func (s *SnapshotSource) Open(ctx context.Context) error {
	img, err := s.processor.LoadImageFromURL(ctx, s.url)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrCameraAccess, err)
	}
	s.open.Store(true)
	b := img.Bounds()
	s.logger.Info("Snapshot camera reachable", zap.String("url", s.url), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
	return nil
}

func (s *SnapshotSource) Read(ctx context.Context) (image.Image, error) {
	if !s.open.Load() {
		return nil, fmt.Errorf("%w: source not open", types.ErrCaptureFailed)
	}
	img, err := s.processor.LoadImageFromURL(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCaptureFailed, err)
	}
	return img, nil
}

func (s *SnapshotSource) Close() error {
	s.open.Store(false)
	return nil
}
