// Package camera provides the frame sources a capture session reads from.
package camera

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
)

// Source yields full-resolution frames. Open acquires the device and Close
// releases it; Close is safe to call more than once.
type Source interface {
	Name() string
	Open(ctx context.Context) error
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Kinds accepted by New
const (
	KindSynthetic = "synthetic"
	KindDir       = "dir"
	KindSnapshot  = "snapshot"
	KindWebcam    = "webcam"
)

// Config selects and parameterizes a source
type Config struct {
	Kind string `mapstructure:"kind"`
	// Device is the V4L2 device of the webcam source
	Device string `mapstructure:"device"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	// Dir holds the images replayed by the dir source
	Dir string `mapstructure:"dir"`
	// URL is the JPEG snapshot endpoint of the snapshot source
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns a 1280x960 synthetic source
func DefaultConfig() Config {
	return Config{
		Kind:    KindSynthetic,
		Device:  "/dev/video0",
		Width:   1280,
		Height:  960,
		Timeout: 5 * time.Second,
	}
}

// New creates the source named by cfg.Kind
func New(cfg Config, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	switch cfg.Kind {
	case "", KindSynthetic:
		return NewSyntheticSource(cfg.Width, cfg.Height, nil), nil
	case KindDir:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("camera: dir source requires a directory")
		}
		return NewDirSource(cfg.Dir, logger), nil
	case KindSnapshot:
		if cfg.URL == "" {
			return nil, fmt.Errorf("camera: snapshot source requires a URL")
		}
		return NewSnapshotSource(cfg.URL, cfg.Timeout, logger), nil
	case KindWebcam:
		if cfg.Device == "" {
			cfg.Device = def.Device
		}
		return NewGstSource(cfg.Device, cfg.Width, cfg.Height, logger), nil
	default:
		return nil, fmt.Errorf("camera: unknown source kind %q", cfg.Kind)
	}
}
