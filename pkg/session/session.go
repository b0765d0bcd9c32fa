// Package session runs the live capture loop: it owns one camera, samples a
// frame per tick, grades it and fires a single analysis once the user has held
// a good pose for the dwell time.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/camera"
	"github.com/menta2k/skin-analyzer/pkg/quality"
	"github.com/menta2k/skin-analyzer/pkg/sampler"
	"github.com/menta2k/skin-analyzer/pkg/trigger"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Analyzer submits a captured frame; *analysis.Client satisfies it
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error)
}

// Config holds the loop timing and the quality pipeline settings
type Config struct {
	TickInterval time.Duration
	Dwell        time.Duration
	Sampler      sampler.Config
	Evaluator    quality.EvaluatorConfig
	Thresholds   quality.Thresholds
}

// DefaultConfig ticks once a second and fires after two seconds of good frames
func DefaultConfig() Config {
	return Config{
		TickInterval: trigger.DefaultInterval,
		Dwell:        trigger.DefaultDwell,
		Sampler:      sampler.Config{Width: sampler.DefaultWidth, Height: sampler.DefaultHeight},
		Evaluator:    quality.DefaultEvaluatorConfig(),
		Thresholds:   quality.DefaultThresholds(),
	}
}

// Tick is what the loop observed on one timer tick
type Tick struct {
	Seq      int
	At       time.Time
	Frame    types.Frame
	Sample   types.QualitySample
	Verdict  types.QualityVerdict
	State    trigger.State
	Progress float64
}

// Observer receives session events. All methods are called from the session's
// loop goroutine, one at a time; they must not call Close.
type Observer interface {
	OnTick(t Tick)
	OnCapture(img image.Image)
	OnResult(r *types.AnalysisResult)
	OnError(err error)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	Tick    func(Tick)
	Capture func(image.Image)
	Result  func(*types.AnalysisResult)
	Error   func(error)
}

func (o ObserverFuncs) OnTick(t Tick) {
	if o.Tick != nil {
		o.Tick(t)
	}
}

func (o ObserverFuncs) OnCapture(img image.Image) {
	if o.Capture != nil {
		o.Capture(img)
	}
}

func (o ObserverFuncs) OnResult(r *types.AnalysisResult) {
	if o.Result != nil {
		o.Result(r)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

// analysisDone carries an analysis outcome back to the loop
type analysisDone struct {
	attempt uint64
	result  *types.AnalysisResult
	err     error
}

// run is the state of one Open..Close cycle
type run struct {
	cancel  context.CancelFunc
	done    chan struct{}
	results chan analysisDone
	reset   chan struct{}
	wg      sync.WaitGroup
}

// Session is a scoped owner of one camera, the tick timer and the trigger
type Session struct {
	id       string
	config   Config
	source   camera.Source
	analyzer Analyzer
	observer Observer
	logger   *zap.Logger

	sampler    *sampler.Sampler
	evaluator  *quality.Evaluator
	classifier atomic.Pointer[quality.Classifier]

	mu  sync.Mutex
	cur *run
}

// New creates a closed session; call Open to start capturing
func New(cfg Config, source camera.Source, analyzer Analyzer, observer Observer, logger *zap.Logger) (*Session, error) {
	if source == nil {
		return nil, errors.New("session: source is required")
	}
	if analyzer == nil {
		return nil, errors.New("session: analyzer is required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = trigger.DefaultInterval
	}
	if cfg.Dwell <= 0 {
		cfg.Dwell = trigger.DefaultDwell
	}
	if cfg.Thresholds == (quality.Thresholds{}) {
		cfg.Thresholds = quality.DefaultThresholds()
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if cfg.Evaluator == (quality.EvaluatorConfig{}) {
		cfg.Evaluator = quality.DefaultEvaluatorConfig()
	}
	if observer == nil {
		observer = ObserverFuncs{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		id:        uuid.NewString(),
		config:    cfg,
		source:    source,
		analyzer:  analyzer,
		observer:  observer,
		sampler:   sampler.NewWithConfig(cfg.Sampler),
		evaluator: quality.NewEvaluatorWithConfig(cfg.Evaluator),
	}
	s.logger = logger.With(zap.String("session", s.id))
	s.classifier.Store(quality.NewClassifierWithThresholds(cfg.Thresholds))
	return s, nil
}

// ID returns the session identifier used in logs and events
func (s *Session) ID() string { return s.id }

// SetThresholds swaps the verdict thresholds; the next tick uses them
func (s *Session) SetThresholds(t quality.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.classifier.Store(quality.NewClassifierWithThresholds(t))
	s.logger.Info("Quality thresholds updated")
	return nil
}

// Open acquires the camera and starts the tick loop. The camera is released
// again if any later setup step fails.
func (s *Session) Open(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return errors.New("session: already open")
	}

	if err := s.source.Open(ctx); err != nil {
		s.source.Close()
		return err
	}
	defer func() {
		if err != nil {
			s.source.Close()
		}
	}()

	// A camera that opens but delivers nothing is as good as inaccessible
	if _, err := s.source.Read(ctx); err != nil {
		if errors.Is(err, types.ErrCameraAccess) {
			return err
		}
		return fmt.Errorf("%w: first frame: %v", types.ErrCameraAccess, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r := &run{
		cancel:  cancel,
		done:    make(chan struct{}),
		results: make(chan analysisDone, 1),
		reset:   make(chan struct{}, 1),
	}
	s.cur = r

	s.logger.Info("Session opened",
		zap.String("source", s.source.Name()),
		zap.Duration("interval", s.config.TickInterval),
		zap.Duration("dwell", s.config.Dwell))

	go s.loop(loopCtx, r)
	return nil
}

// Close stops the loop, cancels any in-flight analysis, releases the camera
// and waits for all session goroutines. Close on a closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.cur
	if r == nil {
		return nil
	}
	s.cur = nil

	r.cancel()
	<-r.done
	r.wg.Wait()

	err := s.source.Close()
	s.logger.Info("Session closed")
	return err
}

// Reset re-arms the trigger for another capture and discards any pending result
func (s *Session) Reset() error {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return types.ErrSessionClosed
	}
	select {
	case r.reset <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed when the current loop exits, either through Close or a fatal camera error
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.cur.done
}

// loop owns the trigger; every state change happens here
func (s *Session) loop(ctx context.Context, r *run) {
	defer close(r.done)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	trig := trigger.NewForDwell(s.config.Dwell, s.config.TickInterval)
	var (
		seq           int
		attempt       uint64
		cancelPending context.CancelFunc
	)
	defer func() {
		if cancelPending != nil {
			cancelPending()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-r.reset:
			attempt++
			if cancelPending != nil {
				cancelPending()
				cancelPending = nil
			}
			trig.Reset()
			s.logger.Debug("Trigger reset")

		case d := <-r.results:
			if d.attempt != attempt {
				s.logger.Debug("Discarding stale analysis result", zap.Uint64("attempt", d.attempt))
				continue
			}
			cancelPending = nil
			trig.EndAnalysis(d.err)
			if d.err != nil {
				s.logger.Warn("Analysis failed, waiting for a new capture", zap.Error(d.err))
				s.observer.OnError(d.err)
				continue
			}
			s.observer.OnResult(d.result)

		case now := <-ticker.C:
			seq++
			img, err := s.source.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Counts as a bad tick so the dwell starts over
				trig.Observe(types.QualityVerdict{Lighting: types.Bad, Position: types.Bad})
				s.observer.OnError(err)
				if errors.Is(err, types.ErrCameraAccess) {
					s.logger.Error("Camera lost, stopping session", zap.Error(err))
					return
				}
				continue
			}

			frame := s.sampler.Sample(img)
			sample := s.evaluator.Evaluate(frame)
			verdict := s.classifier.Load().Classify(sample)
			fire := trig.Observe(verdict)

			s.observer.OnTick(Tick{
				Seq:      seq,
				At:       now,
				Frame:    frame,
				Sample:   sample,
				Verdict:  verdict,
				State:    trig.State(),
				Progress: trig.Progress(),
			})

			if !fire {
				continue
			}

			trig.BeginCapture()
			full, err := capture(img)
			trig.EndCapture(err)
			if err != nil {
				s.observer.OnError(err)
				continue
			}
			s.logger.Info("Capture fired", zap.Int("tick", seq))
			s.observer.OnCapture(full)

			attempt++
			trig.BeginAnalysis()
			actx, cancel := context.WithCancel(ctx)
			cancelPending = cancel
			r.wg.Add(1)
			go func(attempt uint64) {
				defer r.wg.Done()
				defer cancel()
				res, err := s.analyzer.Analyze(actx, full)
				select {
				case r.results <- analysisDone{attempt: attempt, result: res, err: err}:
				case <-ctx.Done():
				}
			}(attempt)
		}
	}
}

// capture copies the full-resolution frame so the source may reuse its buffer
func capture(img image.Image) (image.Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty frame", types.ErrCaptureFailed)
	}
	return imaging.Clone(img), nil
}
