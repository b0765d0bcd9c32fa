// Package skinanalyzer gates skin analysis on face capture quality.
//
// A live camera session samples frames, grades lighting and face placement
// inside a guide ellipse, and captures one full-resolution frame after the user
// has held a good pose for the dwell time. The frame is submitted to an analysis
// provider and the result is turned into a localized display model.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		skinanalyzer "github.com/menta2k/skin-analyzer"
//		"github.com/menta2k/skin-analyzer/pkg/presenter"
//	)
//
//	func main() {
//		sa, err := skinanalyzer.New(skinanalyzer.DefaultConfig(), nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		img, err := sa.LoadImage("face.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		report, _ := sa.Inspect(img)
//		if !report.Ready {
//			log.Fatal(sa.Guidance(report))
//		}
//
//		result, err := sa.Analyze(context.Background(), img)
//		if err != nil {
//			log.Fatal(err)
//		}
//		presenter.WriteText(os.Stdout, sa.Present(result))
//	}
//
// The package wires these components:
//
// 1. Quality (pkg/sampler, pkg/quality, pkg/analyzer): frame grading
// 2. Trigger and session (pkg/trigger, pkg/session): dwell-based capture
// 3. Analysis (pkg/analysis plus a backend): provider submission with mock fallback
// 4. Presenter (pkg/presenter): tiers, concern names and advice
//
// Backends: remote (generic multipart API), ailab, ollama and llamacpp. With no
// backend configured the analysis client answers with deterministic mock results
// unless the mock is disabled.
package skinanalyzer

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/ailab"
	"github.com/menta2k/skin-analyzer/pkg/analysis"
	"github.com/menta2k/skin-analyzer/pkg/analyzer"
	"github.com/menta2k/skin-analyzer/pkg/camera"
	"github.com/menta2k/skin-analyzer/pkg/client"
	"github.com/menta2k/skin-analyzer/pkg/llamacpp"
	"github.com/menta2k/skin-analyzer/pkg/ollama"
	"github.com/menta2k/skin-analyzer/pkg/presenter"
	"github.com/menta2k/skin-analyzer/pkg/processing"
	"github.com/menta2k/skin-analyzer/pkg/remote"
	"github.com/menta2k/skin-analyzer/pkg/session"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Version of the skin analyzer
const Version = "0.3.0"

// Backend kinds
const (
	BackendNone     = "none"
	BackendRemote   = remote.Name
	BackendAILab    = ailab.Name
	BackendOllama   = ollama.Name
	BackendLlamaCpp = llamacpp.Name
)

// BackendConfig selects the analysis provider
type BackendConfig struct {
	Kind          string
	APIBaseURL    string
	ClientID      string
	ClientSecret  string
	AILabEndpoint string
	AILabAPIKey   string
	OllamaURL     string
	LlamaCppURL   string
	Model         string
	Timeout       time.Duration
}

// Config bundles the component settings
type Config struct {
	Backend   BackendConfig
	Analysis  analysis.Config
	Inspector analyzer.Config
	Presenter presenter.Config
	Session   session.Config
}

// DefaultConfig uses the mock provider and the capture screen defaults
func DefaultConfig() Config {
	return Config{
		Backend:   BackendConfig{Kind: BackendNone},
		Analysis:  analysis.DefaultConfig(),
		Inspector: analyzer.DefaultConfig(),
		Presenter: presenter.DefaultConfig(),
		Session:   session.DefaultConfig(),
	}
}

// NewBackend builds the configured provider client; kind "none" returns nil
func NewBackend(cfg BackendConfig) (client.Backend, error) {
	var (
		backend client.Backend
		err     error
	)
	switch cfg.Kind {
	case "", BackendNone:
		return nil, nil
	case BackendRemote:
		var c *remote.Client
		c, err = remote.NewClient(remote.Config{
			BaseURL:      cfg.APIBaseURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Timeout:      cfg.Timeout,
		})
		backend = c
	case BackendAILab:
		var c *ailab.Client
		c, err = ailab.NewClient(cfg.AILabEndpoint, cfg.AILabAPIKey)
		backend = c
	case BackendOllama:
		var c *ollama.Client
		c, err = ollama.NewClient(cfg.OllamaURL, cfg.Model)
		backend = c
	case BackendLlamaCpp:
		backend = llamacpp.NewClient(cfg.LlamaCppURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// SkinAnalyzer provides a high-level interface over the capture and analysis pipeline
type SkinAnalyzer struct {
	config    Config
	logger    *zap.Logger
	processor *processing.Processor
	inspector *analyzer.ImageAnalyzer
	analysis  *analysis.Client
	presenter *presenter.Presenter
}

// New builds the pipeline from cfg. logger may be nil.
func New(cfg Config, logger *zap.Logger) (*SkinAnalyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = cfg.Analysis.Timeout
	}

	backend, err := NewBackend(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Backend.Kind, err)
	}
	return NewWithBackend(cfg, backend, logger)
}

// NewWithBackend builds the pipeline around an already constructed backend
func NewWithBackend(cfg Config, backend client.Backend, logger *zap.Logger) (*SkinAnalyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inspector, err := analyzer.NewWithConfig(cfg.Inspector)
	if err != nil {
		return nil, err
	}
	pres, err := presenter.NewWithConfig(cfg.Presenter, nil)
	if err != nil {
		return nil, err
	}

	return &SkinAnalyzer{
		config:    cfg,
		logger:    logger,
		processor: processing.NewProcessor(),
		inspector: inspector,
		analysis:  analysis.NewWithConfig(cfg.Analysis, backend, logger),
		presenter: pres,
	}, nil
}

// Config returns the pipeline settings
func (sa *SkinAnalyzer) Config() Config { return sa.config }

// Client returns the analysis client
func (sa *SkinAnalyzer) Client() *analysis.Client { return sa.analysis }

// Inspector returns the still-image quality grader
func (sa *SkinAnalyzer) Inspector() *analyzer.ImageAnalyzer { return sa.inspector }

// Presenter returns the display model builder
func (sa *SkinAnalyzer) Presenter() *presenter.Presenter { return sa.presenter }

// Processor returns the image loader
func (sa *SkinAnalyzer) Processor() *processing.Processor { return sa.processor }

// LoadImage loads an image from a file path or http(s) URL
func (sa *SkinAnalyzer) LoadImage(source string) (image.Image, error) {
	return sa.processor.LoadImageSmart(context.Background(), source)
}

// Inspect grades lighting and face placement of a still image
func (sa *SkinAnalyzer) Inspect(img image.Image) (analyzer.Report, error) {
	return sa.inspector.Inspect(img)
}

// Guidance returns capture hints for a report
func (sa *SkinAnalyzer) Guidance(r analyzer.Report) []string {
	return sa.presenter.Guidance(r.Verdict, r.Sample)
}

// Analyze submits a decoded image
func (sa *SkinAnalyzer) Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error) {
	return sa.analysis.Analyze(ctx, img)
}

// AnalyzeBytes validates and submits encoded image bytes
func (sa *SkinAnalyzer) AnalyzeBytes(ctx context.Context, data []byte) (*types.AnalysisResult, error) {
	return sa.analysis.AnalyzeBytes(ctx, data)
}

// Present builds the localized display model of a result
func (sa *SkinAnalyzer) Present(r *types.AnalysisResult) presenter.DisplayModel {
	return sa.presenter.Present(r)
}

// Overlay draws the guide ellipse on img, colored by the verdict
func (sa *SkinAnalyzer) Overlay(img image.Image, v types.QualityVerdict) image.Image {
	ev := sa.inspector.Config().Evaluator
	return sa.processor.GuideOverlay(img, ev.RadiusX, ev.RadiusY, processing.VerdictColor(v))
}

// NewSession creates a closed camera session that submits captures to this pipeline
func (sa *SkinAnalyzer) NewSession(source camera.Source, observer session.Observer) (*session.Session, error) {
	cfg := sa.config.Session
	cfg.Evaluator = sa.inspector.Config().Evaluator
	cfg.Thresholds = sa.inspector.Config().Thresholds
	cfg.Sampler = sa.inspector.Config().Sampler
	return session.New(cfg, source, sa.analysis, observer, sa.logger)
}
