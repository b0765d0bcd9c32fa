package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/skin-analyzer/pkg/mock"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// fakeBackend records calls and answers with a fixed result or error
type fakeBackend struct {
	calls  atomic.Int32
	result *types.AnalysisResult
	err    error
	delay  time.Duration
	last   []byte
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Analyze(ctx context.Context, jpeg []byte) (*types.AnalysisResult, error) {
	f.calls.Add(1)
	f.last = jpeg
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("fake: %w", ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result.Clone(), nil
}

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 150, 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func providerResult() *types.AnalysisResult {
	return &types.AnalysisResult{
		ID:           "r1",
		OverallScore: 77,
		SkinAge:      30,
		Provenance:   types.Provenance{Source: types.SourceProvider, Provider: "fake"},
	}
}

func TestMockEnabled(t *testing.T) {
	tests := map[string]bool{
		"":        true,
		"true":    true,
		"1":       true,
		"no":      true,
		"false":   false,
		"FALSE":   false,
		" false ": false,
	}
	for in, want := range tests {
		if got := MockEnabled(in); got != want {
			t.Errorf("MockEnabled(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOversizedImageRejectedBeforeNetwork(t *testing.T) {
	backend := &fakeBackend{result: providerResult()}
	c := New(backend, nil)

	data := make([]byte, 5*1024*1024+100*1024)
	copy(data, encodeJPEG(t, createTestImage(300, 300)))

	_, err := c.AnalyzeBytes(context.Background(), data)
	if !errors.Is(err, types.ErrInvalidImage) {
		t.Fatalf("Expected ErrInvalidImage, got %v", err)
	}
	if n := backend.calls.Load(); n != 0 {
		t.Errorf("Expected no backend call, got %d", n)
	}
}

func TestNetworkFailureFallsBackToMock(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("%w: connection refused", types.ErrNetwork)}
	c := New(backend, nil)

	res, err := c.Analyze(context.Background(), createTestImage(400, 300))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !res.Provenance.Mock || res.Provenance.Source != types.SourceMock {
		t.Errorf("Expected mock provenance, got %+v", res.Provenance)
	}
	if res.Provenance.FallbackReason == "" {
		t.Error("Expected fallback reason")
	}
	if res.OverallScore < mock.OverallMin || res.OverallScore > mock.OverallMax {
		t.Errorf("Overall score %d outside mock range", res.OverallScore)
	}
	if len(res.Concerns) == 0 {
		t.Error("Expected concerns in mock result")
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("Expected exactly one backend call, got %d", n)
	}
}

func TestFallbackDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableMockAPI = false

	backend := &fakeBackend{err: fmt.Errorf("%w: dial tcp", types.ErrNetwork)}
	_, err := NewWithConfig(cfg, backend, nil).Analyze(context.Background(), createTestImage(300, 300))
	if !errors.Is(err, types.ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}

	_, err = NewWithConfig(cfg, nil, nil).Analyze(context.Background(), createTestImage(300, 300))
	if !errors.Is(err, types.ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable without backend, got %v", err)
	}
}

func TestNoBackendUsesMock(t *testing.T) {
	c := New(nil, nil)
	res, err := c.Analyze(context.Background(), createTestImage(300, 300))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !res.Provenance.Mock || res.Provenance.FallbackReason != "" {
		t.Errorf("Unexpected provenance: %+v", res.Provenance)
	}
	if c.Provider() != mock.ProviderName {
		t.Errorf("Expected provider %q, got %q", mock.ProviderName, c.Provider())
	}
}

func TestInvalidImageNotMasked(t *testing.T) {
	backend := &fakeBackend{err: &types.ProviderError{StatusCode: 400, Message: "No face detected"}}
	_, err := New(backend, nil).Analyze(context.Background(), createTestImage(300, 300))
	if !errors.Is(err, types.ErrInvalidImage) {
		t.Errorf("Expected ErrInvalidImage to surface, got %v", err)
	}
}

func TestTimeoutMapsToNetworkError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.EnableMockAPI = false

	backend := &fakeBackend{result: providerResult(), delay: time.Second}
	_, err := NewWithConfig(cfg, backend, nil).Analyze(context.Background(), createTestImage(300, 300))
	if !errors.Is(err, types.ErrNetwork) {
		t.Errorf("Expected ErrNetwork on timeout, got %v", err)
	}
}

func TestCallerCancelDoesNotFallBack(t *testing.T) {
	backend := &fakeBackend{result: providerResult(), delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := New(backend, nil).Analyze(ctx, createTestImage(300, 300))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v (result %+v)", err, res)
	}
}

func TestCallerDeadlineMapsToNetworkError(t *testing.T) {
	tests := []struct {
		name     string
		mock     bool
		wantMock bool
	}{
		{"mock enabled falls back", true, true},
		{"mock disabled surfaces error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.EnableMockAPI = tt.mock
			backend := &fakeBackend{result: providerResult(), delay: time.Second}

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			res, err := NewWithConfig(cfg, backend, nil).Analyze(ctx, createTestImage(300, 300))
			if tt.wantMock {
				if err != nil {
					t.Fatalf("Expected mock fallback, got error %v", err)
				}
				if !res.Provenance.Mock || res.Provenance.FallbackReason == "" {
					t.Errorf("Expected fallback mock provenance, got %+v", res.Provenance)
				}
				if res.OverallScore < mock.OverallMin || res.OverallScore > mock.OverallMax {
					t.Errorf("Mock score %d out of range", res.OverallScore)
				}
				return
			}
			if !errors.Is(err, types.ErrNetwork) {
				t.Errorf("Expected ErrNetwork, got %v", err)
			}
			if errors.Is(err, context.Canceled) {
				t.Error("Deadline must not be reported as a cancel")
			}
		})
	}
}

func TestPrepare(t *testing.T) {
	c := New(nil, nil)

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"jpeg ok", encodeJPEG(t, createTestImage(300, 300)), false},
		{"png transcoded", encodePNG(t, createTestImage(250, 400)), false},
		{"too small", encodeJPEG(t, createTestImage(199, 300)), true},
		{"too large", encodePNG(t, image.NewGray(image.Rect(0, 0, 4097, 200))), true},
		{"garbage", []byte("definitely not an image"), true},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Prepare(tt.data)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidImage) {
					t.Errorf("Expected ErrInvalidImage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			if len(out) < 2 || out[0] != 0xFF || out[1] != 0xD8 {
				t.Error("Expected JPEG output")
			}
		})
	}
}

func TestAnalyzeShrinksLargeFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDimension = 400
	backend := &fakeBackend{result: providerResult()}

	res, err := NewWithConfig(cfg, backend, nil).Analyze(context.Background(), createTestImage(800, 600))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Provenance.Mock {
		t.Error("Expected provider result")
	}

	got, err := jpeg.DecodeConfig(bytes.NewReader(backend.last))
	if err != nil {
		t.Fatalf("submitted bytes are not JPEG: %v", err)
	}
	if got.Width != 400 || got.Height != 300 {
		t.Errorf("Expected 400x300 submission, got %dx%d", got.Width, got.Height)
	}
}
