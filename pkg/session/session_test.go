package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/skin-analyzer/pkg/camera"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

const (
	testInterval = 5 * time.Millisecond
	testDwell    = 10 * time.Millisecond // two ticks
	waitTimeout  = 2 * time.Second
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = testInterval
	cfg.Dwell = testDwell
	return cfg
}

// fakeAnalyzer answers from a per-call function
type fakeAnalyzer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int32) (*types.AnalysisResult, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error) {
	n := f.calls.Add(1)
	if f.fn == nil {
		return &types.AnalysisResult{ID: "ok"}, nil
	}
	return f.fn(ctx, n)
}

// recorder collects observer events
type recorder struct {
	mu       sync.Mutex
	ticks    []Tick
	captures []int // tick seq at capture time
	results  []*types.AnalysisResult
	errs     []error
	resultCh chan *types.AnalysisResult
	errCh    chan error
}

func newRecorder() *recorder {
	return &recorder{
		resultCh: make(chan *types.AnalysisResult, 16),
		errCh:    make(chan error, 16),
	}
}

func (r *recorder) OnTick(t Tick) {
	r.mu.Lock()
	r.ticks = append(r.ticks, t)
	r.mu.Unlock()
}

func (r *recorder) OnCapture(img image.Image) {
	r.mu.Lock()
	seq := 0
	if len(r.ticks) > 0 {
		seq = r.ticks[len(r.ticks)-1].Seq
	}
	r.captures = append(r.captures, seq)
	r.mu.Unlock()
}

func (r *recorder) OnResult(res *types.AnalysisResult) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	r.resultCh <- res
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	select {
	case r.errCh <- err:
	default:
	}
}

func (r *recorder) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func (r *recorder) waitTicks(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for r.tickCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d ticks", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitResult(t *testing.T, ch <-chan *types.AnalysisResult) *types.AnalysisResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for a result")
		return nil
	}
}

func openSession(t *testing.T, src camera.Source, an Analyzer, rec *recorder) *Session {
	t.Helper()
	s, err := New(testConfig(), src, an, rec, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFiresExactlyOnce(t *testing.T) {
	rec := newRecorder()
	an := &fakeAnalyzer{}
	src := camera.NewSyntheticSource(320, 240, nil)
	openSession(t, src, an, rec)

	waitResult(t, rec.resultCh)
	before := rec.tickCount()
	rec.waitTicks(t, before+10)

	if n := an.calls.Load(); n != 1 {
		t.Errorf("Expected exactly one analysis, got %d", n)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.captures) != 1 {
		t.Errorf("Expected one capture, got %d", len(rec.captures))
	}
}

func TestDwellResetsAfterBadTick(t *testing.T) {
	good := camera.FaceScene(320, 240, 1.0)
	bad := camera.SolidScene(320, 240, color.NRGBA{0, 0, 0, 255})

	tests := []struct {
		name   string
		script []image.Image
	}{
		{"bad bad good good", []image.Image{bad, bad, good, good}},
		{"good bad good good", []image.Image{good, bad, good, good}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			// Open consumes one frame as a liveness probe
			frames := append([]image.Image{good}, tt.script...)
			src := camera.NewSyntheticSource(320, 240, camera.Script(frames...))
			openSession(t, src, &fakeAnalyzer{}, rec)

			waitResult(t, rec.resultCh)

			rec.mu.Lock()
			defer rec.mu.Unlock()
			if len(rec.captures) != 1 || rec.captures[0] != 4 {
				t.Errorf("Expected a single capture at tick 4, got %v", rec.captures)
			}
		})
	}
}

func TestResetRearms(t *testing.T) {
	rec := newRecorder()
	an := &fakeAnalyzer{}
	s := openSession(t, camera.NewSyntheticSource(320, 240, nil), an, rec)

	waitResult(t, rec.resultCh)
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	waitResult(t, rec.resultCh)

	if n := an.calls.Load(); n != 2 {
		t.Errorf("Expected two analyses after reset, got %d", n)
	}
}

func TestResetDiscardsPendingResult(t *testing.T) {
	rec := newRecorder()
	started := make(chan struct{})
	an := &fakeAnalyzer{fn: func(ctx context.Context, call int32) (*types.AnalysisResult, error) {
		if call == 1 {
			close(started)
			<-ctx.Done()
			return &types.AnalysisResult{ID: "stale"}, nil
		}
		return &types.AnalysisResult{ID: "fresh"}, nil
	}}
	s := openSession(t, camera.NewSyntheticSource(320, 240, nil), an, rec)

	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("Analysis never started")
	}
	s.Reset()

	if res := waitResult(t, rec.resultCh); res.ID != "fresh" {
		t.Errorf("Expected fresh result, got %q", res.ID)
	}
}

func TestAnalysisFailureAllowsRecapture(t *testing.T) {
	rec := newRecorder()
	an := &fakeAnalyzer{fn: func(ctx context.Context, call int32) (*types.AnalysisResult, error) {
		if call == 1 {
			return nil, types.InvalidImagef("no face")
		}
		return &types.AnalysisResult{ID: "second"}, nil
	}}
	openSession(t, camera.NewSyntheticSource(320, 240, nil), an, rec)

	select {
	case err := <-rec.errCh:
		if !errors.Is(err, types.ErrInvalidImage) {
			t.Errorf("Expected ErrInvalidImage, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for the analysis error")
	}

	if res := waitResult(t, rec.resultCh); res.ID != "second" {
		t.Errorf("Expected second result, got %q", res.ID)
	}
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	rec := newRecorder()
	started := make(chan struct{})
	an := &fakeAnalyzer{fn: func(ctx context.Context, call int32) (*types.AnalysisResult, error) {
		close(started)
		<-ctx.Done()
		return &types.AnalysisResult{ID: "late"}, nil
	}}
	src := camera.NewSyntheticSource(320, 240, nil)
	s, _ := New(testConfig(), src, an, rec, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	<-started
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if src.IsOpen() {
		t.Error("Expected camera released after Close")
	}
	rec.mu.Lock()
	n := len(rec.results)
	rec.mu.Unlock()
	if n != 0 {
		t.Errorf("Expected no result after Close, got %d", n)
	}
	if err := s.Reset(); !errors.Is(err, types.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close() error = %v", err)
	}
}

func TestOpenReleasesCameraOnFailure(t *testing.T) {
	src := camera.NewSyntheticSource(320, 240, func(int) (image.Image, error) {
		return nil, errors.New("sensor timeout")
	})
	s, _ := New(testConfig(), src, &fakeAnalyzer{}, nil, nil)

	err := s.Open(context.Background())
	if !errors.Is(err, types.ErrCameraAccess) {
		t.Fatalf("Expected ErrCameraAccess, got %v", err)
	}
	if src.IsOpen() {
		t.Error("Expected camera released after failed Open")
	}

	denied := camera.NewSyntheticSource(320, 240, nil)
	denied.OpenErr = errors.New("permission denied")
	s2, _ := New(testConfig(), denied, &fakeAnalyzer{}, nil, nil)
	if err := s2.Open(context.Background()); !errors.Is(err, types.ErrCameraAccess) {
		t.Errorf("Expected ErrCameraAccess, got %v", err)
	}
}

func TestReopenAfterClose(t *testing.T) {
	rec := newRecorder()
	an := &fakeAnalyzer{}
	src := camera.NewSyntheticSource(320, 240, nil)
	s, _ := New(testConfig(), src, an, rec, nil)

	for i := 0; i < 2; i++ {
		if err := s.Open(context.Background()); err != nil {
			t.Fatalf("Open() #%d error = %v", i, err)
		}
		waitResult(t, rec.resultCh)
		s.Close()
	}
	if n := an.calls.Load(); n != 2 {
		t.Errorf("Expected one analysis per open, got %d", n)
	}
}

func TestDoubleOpen(t *testing.T) {
	s := openSession(t, camera.NewSyntheticSource(64, 48, nil), &fakeAnalyzer{}, newRecorder())
	if err := s.Open(context.Background()); err == nil {
		t.Error("Expected error opening an open session")
	}
}

func TestNewRejectsBadThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds.GoodCoverage = 2
	if _, err := New(cfg, camera.NewSyntheticSource(8, 8, nil), &fakeAnalyzer{}, nil, nil); err == nil {
		t.Error("Expected threshold validation error")
	}
}
