// Package analysis submits captured faces to a skin analysis backend, with
// request validation, a per-call timeout and a tagged mock fallback.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/client"
	"github.com/menta2k/skin-analyzer/pkg/mock"
	"github.com/menta2k/skin-analyzer/pkg/processing"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Request limits accepted by providers
const (
	DefaultMaxBytes     = 5 * 1024 * 1024
	DefaultMinDimension = 200
	DefaultMaxDimension = 4096
	DefaultTimeout      = 30 * time.Second
	DefaultJPEGQuality  = 90
)

// Config holds analysis client settings
type Config struct {
	// EnableMockAPI allows answering from the mock generator when no provider can
	EnableMockAPI bool
	Timeout       time.Duration
	MaxBytes      int
	MinDimension  int
	MaxDimension  int
	JPEGQuality   int
	MockSeed      int64
}

// DefaultConfig returns the default client settings
func DefaultConfig() Config {
	return Config{
		EnableMockAPI: true,
		Timeout:       DefaultTimeout,
		MaxBytes:      DefaultMaxBytes,
		MinDimension:  DefaultMinDimension,
		MaxDimension:  DefaultMaxDimension,
		JPEGQuality:   DefaultJPEGQuality,
	}
}

// MockEnabled interprets an ENABLE_MOCK_API style value: only "false" disables the mock
func MockEnabled(value string) bool {
	return !strings.EqualFold(strings.TrimSpace(value), "false")
}

// Client is the analysis entry point used by sessions, the CLI and the HTTP server
type Client struct {
	config  Config
	backend client.Backend
	mock    *mock.Generator
	logger  *zap.Logger
}

// New creates a client with default settings. backend may be nil.
func New(backend client.Backend, logger *zap.Logger) *Client {
	return NewWithConfig(DefaultConfig(), backend, logger)
}

// NewWithConfig creates a client, filling unset limits with defaults
func NewWithConfig(cfg Config, backend client.Backend, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.MinDimension <= 0 {
		cfg.MinDimension = def.MinDimension
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:  cfg,
		backend: backend,
		mock:    mock.New(cfg.MockSeed),
		logger:  logger,
	}
}

// Config returns the effective settings
func (c *Client) Config() Config {
	return c.config
}

// Provider names the backend results are expected from
func (c *Client) Provider() string {
	if c.backend == nil {
		if c.config.EnableMockAPI {
			return mock.ProviderName
		}
		return "none"
	}
	return c.backend.Name()
}

// Analyze encodes a full-resolution frame as JPEG and submits it.
// Frames larger than the maximum dimension are shrunk; smaller than the minimum are rejected.
func (c *Client) Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error) {
	if img == nil {
		return nil, types.InvalidImagef("no image")
	}
	b := img.Bounds()
	if b.Dx() < c.config.MinDimension || b.Dy() < c.config.MinDimension {
		return nil, types.InvalidImagef("resolution %dx%d below minimum %d", b.Dx(), b.Dy(), c.config.MinDimension)
	}

	data, err := processing.EncodeJPEG(img, c.config.MaxDimension, c.config.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(data) > c.config.MaxBytes {
		return nil, types.InvalidImagef("encoded size %d exceeds %d bytes", len(data), c.config.MaxBytes)
	}

	return c.submit(ctx, data)
}

// AnalyzeBytes validates an uploaded image and submits it, transcoding PNG and WebP to JPEG
func (c *Client) AnalyzeBytes(ctx context.Context, data []byte) (*types.AnalysisResult, error) {
	jpeg, err := c.Prepare(data)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, jpeg)
}

// Prepare checks size, format and resolution and returns JPEG bytes ready to submit
func (c *Client) Prepare(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, types.InvalidImagef("empty image")
	}
	if len(data) > c.config.MaxBytes {
		return nil, types.InvalidImagef("size %d exceeds %d bytes", len(data), c.config.MaxBytes)
	}

	format, w, h, err := processing.DecodeConfig(data)
	if err != nil {
		return nil, types.InvalidImagef("unsupported format: %v", err)
	}
	switch format {
	case "jpeg", "png", "webp":
	default:
		return nil, types.InvalidImagef("unsupported format %q", format)
	}
	if w < c.config.MinDimension || h < c.config.MinDimension ||
		w > c.config.MaxDimension || h > c.config.MaxDimension {
		return nil, types.InvalidImagef("resolution %dx%d outside %d-%d", w, h, c.config.MinDimension, c.config.MaxDimension)
	}

	if format == "jpeg" {
		return data, nil
	}

	img, err := processing.DecodeBytes(data)
	if err != nil {
		return nil, types.InvalidImagef("decode %s: %v", format, err)
	}
	jpeg, err := processing.EncodeJPEG(img, 0, c.config.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to transcode %s: %w", format, err)
	}
	if len(jpeg) > c.config.MaxBytes {
		return nil, types.InvalidImagef("transcoded size %d exceeds %d bytes", len(jpeg), c.config.MaxBytes)
	}
	return jpeg, nil
}

// submit calls the backend once, falling back to the mock when allowed
func (c *Client) submit(ctx context.Context, jpeg []byte) (*types.AnalysisResult, error) {
	if c.backend == nil {
		if !c.config.EnableMockAPI {
			return nil, fmt.Errorf("%w: no provider configured and mock disabled", types.ErrProviderUnavailable)
		}
		return c.fromMock(jpeg, ""), nil
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	result, err := c.backend.Analyze(callCtx, jpeg)
	if err == nil {
		c.logger.Info("Analysis completed",
			zap.String("provider", c.backend.Name()),
			zap.String("id", result.ID),
			zap.Int("overall_score", result.OverallScore),
			zap.Duration("elapsed", time.Since(start)))
		return result, nil
	}

	// The caller gave up; nothing to fall back for
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, fmt.Errorf("analysis canceled: %w", ctx.Err())
	}
	// A deadline, ours or the caller's, is a network timeout
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, types.ErrNetwork) {
		err = fmt.Errorf("%w: %s timed out: %v", types.ErrNetwork, c.backend.Name(), err)
	}

	if c.config.EnableMockAPI && (errors.Is(err, types.ErrNetwork) || errors.Is(err, types.ErrProviderUnavailable)) {
		c.logger.Warn("Provider failed, using mock result",
			zap.String("provider", c.backend.Name()),
			zap.Error(err))
		return c.fromMock(jpeg, err.Error()), nil
	}

	c.logger.Error("Analysis failed",
		zap.String("provider", c.backend.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return nil, err
}

func (c *Client) fromMock(jpeg []byte, reason string) *types.AnalysisResult {
	result := c.mock.Generate(jpeg)
	result.Provenance.FallbackReason = reason
	c.logger.Info("Mock analysis generated",
		zap.String("id", result.ID),
		zap.Int("overall_score", result.OverallScore),
		zap.Bool("fallback", reason != ""))
	return result
}
