//go:build gst

package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// pullTimeout bounds a single frame pull from the appsink
const pullTimeout = 2 * time.Second

// GstSource captures from a V4L2 webcam through a GStreamer appsink
type GstSource struct {
	device string
	width  int
	height int
	logger *zap.Logger

	mu       sync.Mutex
	pipeline *gst.Pipeline
	sink     *app.Sink
}

func NewGstSource(device string, width, height int, logger *zap.Logger) Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GstSource{device: device, width: width, height: height, logger: logger}
}

func (g *GstSource) Name() string { return "webcam:" + g.device }

func (g *GstSource) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pipeline != nil {
		return nil
	}

	gst.Init(nil)

	desc := fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! videoscale ! video/x-raw,format=RGBA,width=%d,height=%d ! appsink name=sink sync=false max-buffers=1 drop=true",
		g.device, g.width, g.height,
	)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return fmt.Errorf("%w: create pipeline: %v", types.ErrCameraAccess, err)
	}

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("%w: appsink: %v", types.ErrCameraAccess, err)
	}
	sink := app.SinkFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("%w: start %s: %v", types.ErrCameraAccess, g.device, err)
	}

	// A device that is busy or missing only fails once data should flow
	if sample := sink.TryPullSample(pullTimeout); sample == nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("%w: no frames from %s", types.ErrCameraAccess, g.device)
	}

	g.pipeline = pipeline
	g.sink = sink
	g.logger.Info("Webcam opened", zap.String("device", g.device), zap.Int("width", g.width), zap.Int("height", g.height))
	return nil
}

func (g *GstSource) Read(ctx context.Context) (image.Image, error) {
	g.mu.Lock()
	sink := g.sink
	g.mu.Unlock()
	if sink == nil {
		return nil, fmt.Errorf("%w: source not open", types.ErrCaptureFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sample := sink.TryPullSample(pullTimeout)
	if sample == nil {
		return nil, fmt.Errorf("%w: no sample within %s", types.ErrCaptureFailed, pullTimeout)
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, fmt.Errorf("%w: empty sample", types.ErrCaptureFailed)
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	data := mapInfo.Bytes()

	want := g.width * g.height * 4
	if len(data) < want {
		return nil, fmt.Errorf("%w: short buffer %d < %d", types.ErrCaptureFailed, len(data), want)
	}

	img := image.NewNRGBA(image.Rect(0, 0, g.width, g.height))
	copy(img.Pix, data[:want])
	return img, nil
}

func (g *GstSource) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pipeline == nil {
		return nil
	}
	err := g.pipeline.SetState(gst.StateNull)
	g.pipeline = nil
	g.sink = nil
	g.logger.Info("Webcam released", zap.String("device", g.device))
	return err
}
