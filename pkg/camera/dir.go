package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/internal/utils"
	"github.com/menta2k/skin-analyzer/pkg/processing"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// DirSource replays the images of a directory in name order, looping
type DirSource struct {
	dir       string
	processor *processing.Processor
	logger    *zap.Logger

	mu    sync.Mutex
	files []string
	next  int
}

func NewDirSource(dir string, logger *zap.Logger) *DirSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSource{
		dir:       dir,
		processor: processing.NewProcessor(),
		logger:    logger,
	}
}

func (d *DirSource) Name() string { return "dir:" + d.dir }

func (d *DirSource) Open(ctx context.Context) error {
	files, err := utils.ListImageFiles(d.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrCameraAccess, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no images in %s", types.ErrCameraAccess, d.dir)
	}

	d.mu.Lock()
	d.files = files
	d.next = 0
	d.mu.Unlock()

	d.logger.Info("Replaying image directory", zap.String("dir", d.dir), zap.Int("files", len(files)))
	return nil
}

func (d *DirSource) Read(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	if len(d.files) == 0 {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: source not open", types.ErrCaptureFailed)
	}
	path := d.files[d.next%len(d.files)]
	d.next++
	d.mu.Unlock()

	img, err := d.processor.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCaptureFailed, err)
	}
	return img, nil
}

func (d *DirSource) Close() error {
	d.mu.Lock()
	d.files = nil
	d.mu.Unlock()
	return nil
}
