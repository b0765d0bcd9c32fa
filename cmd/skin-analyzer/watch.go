package main

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/internal/config"
	"github.com/menta2k/skin-analyzer/internal/emitter"
	"github.com/menta2k/skin-analyzer/internal/history"
	"github.com/menta2k/skin-analyzer/internal/utils"
	"github.com/menta2k/skin-analyzer/pkg/camera"
	"github.com/menta2k/skin-analyzer/pkg/processing"
	"github.com/menta2k/skin-analyzer/pkg/session"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

var (
	watchSource     string
	watchDevice     string
	watchDir        string
	watchURL        string
	watchOnce       bool
	watchCaptureDir string
	watchJSON       bool
	watchQuiet      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the live capture loop: wait for a good pose, capture once and analyze",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSource, "source", "", "camera kind override: webcam|snapshot|dir|synthetic")
	watchCmd.Flags().StringVar(&watchDevice, "device", "", "webcam device override")
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "image directory for the dir source")
	watchCmd.Flags().StringVar(&watchURL, "url", "", "snapshot URL for the snapshot source")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "exit after the first result")
	watchCmd.Flags().StringVar(&watchCaptureDir, "save-captures", "", "write each captured frame to this directory")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print results as JSON")
	watchCmd.Flags().BoolVar(&watchQuiet, "quiet", false, "do not print per-tick quality lines")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loader.Config()

	camCfg := cfg.Capture.Camera
	if watchSource != "" {
		camCfg.Kind = watchSource
	}
	if watchDevice != "" {
		camCfg.Device = watchDevice
	}
	if watchDir != "" {
		camCfg.Dir = watchDir
	}
	if watchURL != "" {
		camCfg.URL = watchURL
	}
	src, err := camera.New(camCfg, logger)
	if err != nil {
		return err
	}

	sa, err := newPipeline()
	if err != nil {
		return err
	}
	store, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	pub := openPublisher(ctx)
	defer pub.Close()

	results := make(chan *types.AnalysisResult, 1)
	var sess *session.Session
	observer := session.ObserverFuncs{
		Tick: func(t session.Tick) {
			if watchQuiet {
				return
			}
			fmt.Fprintf(os.Stderr, "\r[%s] lighting=%-7s position=%-7s dwell=%3.0f%%  %s\033[K",
				t.State, t.Verdict.Lighting, t.Verdict.Position, t.Progress*100,
				strings.Join(sa.Presenter().Guidance(t.Verdict, t.Sample), " "))
		},
		Capture: func(img image.Image) {
			fmt.Fprintln(os.Stderr)
			logger.Info("Frame captured, analyzing", zap.Int("width", img.Bounds().Dx()), zap.Int("height", img.Bounds().Dy()))
			if watchCaptureDir != "" {
				saveCapture(sa.Processor(), img)
			}
		},
		Result: func(r *types.AnalysisResult) {
			record(ctx, store, pub, sess.ID(), history.OriginCamera, r)
			if err := printResult(sa.Present(r), watchJSON); err != nil {
				logger.Error("Failed to print result", zap.Error(err))
			}
			select {
			case results <- r:
			default:
			}
		},
		Error: func(err error) {
			logger.Warn("Session error", zap.Error(err))
			if !analysisFailure(err) {
				return
			}
			if perr := pub.Publish(ctx, emitter.FailureEvent(sess.ID(), history.OriginCamera, err)); perr != nil {
				logger.Debug("Failed to publish failure", zap.Error(perr))
			}
		},
	}

	sess, err = sa.NewSession(src, observer)
	if err != nil {
		return err
	}

	loader.Watch(func(c *config.Config) {
		if err := sess.SetThresholds(c.Quality.Thresholds); err != nil {
			logger.Warn("Ignoring new thresholds", zap.Error(err))
		}
	})

	if err := sess.Open(ctx); err != nil {
		return err
	}
	defer sess.Close()
	fmt.Fprintln(os.Stderr, "Hold your face inside the guide. Press Ctrl+C to stop, Enter to capture again.")

	go rearmOnEnter(sess)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("camera session ended: %w", types.ErrCameraAccess)
		case <-results:
			if watchOnce {
				return nil
			}
		}
	}
}

// analysisFailure reports errors returned by the analysis rather than by the camera
func analysisFailure(err error) bool {
	var pe *types.ProviderError
	return errors.As(err, &pe) ||
		errors.Is(err, types.ErrInvalidImage) ||
		errors.Is(err, types.ErrNetwork) ||
		errors.Is(err, types.ErrProviderUnavailable) ||
		errors.Is(err, types.ErrMalformedResponse)
}

// rearmOnEnter resets the trigger each time a line arrives on stdin
func rearmOnEnter(s *session.Session) {
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		if buf[0] != '\n' {
			continue
		}
		if err := s.Reset(); err != nil {
			return
		}
		logger.Info("Trigger re-armed")
	}
}

func saveCapture(p *processing.Processor, img image.Image) {
	if err := utils.EnsureDir(watchCaptureDir); err != nil {
		logger.Warn("Failed to create capture directory", zap.Error(err))
		return
	}
	path := filepath.Join(watchCaptureDir, fmt.Sprintf("capture-%s.jpg", time.Now().Format("20060102-150405.000")))
	if err := p.SaveImage(img, path, "jpg", 92, false); err != nil {
		logger.Warn("Failed to save capture", zap.Error(err))
		return
	}
	logger.Info("Capture saved", zap.String("path", path))
}
