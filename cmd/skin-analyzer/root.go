package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	skinanalyzer "github.com/menta2k/skin-analyzer"
	"github.com/menta2k/skin-analyzer/internal/config"
	"github.com/menta2k/skin-analyzer/internal/emitter"
	"github.com/menta2k/skin-analyzer/internal/history"
	"github.com/menta2k/skin-analyzer/internal/logging"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

var (
	configPath string
	logLevel   string

	// loader holds the configuration shared by subcommands
	loader *config.Loader
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "skin-analyzer",
	Short:         "Face-quality gated skin analysis",
	Version:       skinanalyzer.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		loader, err = config.Load(configPath, nil)
		if err != nil {
			return err
		}
		cfg := loader.Config()

		logCfg := cfg.Logging
		if logLevel != "" {
			logCfg.Level = logLevel
		}
		logger, err = logging.New(logCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if f := loader.File(); f != "" {
			logger.Debug("Configuration loaded", zap.String("file", f))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute runs the root command with a context canceled on Ctrl+C or SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./config.yaml or "+config.DefaultDir()+"/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug|info|warn|error")
}

// pipelineConfig maps the file configuration onto the library configuration
func pipelineConfig(cfg *config.Config) skinanalyzer.Config {
	pc := skinanalyzer.DefaultConfig()

	pc.Backend = skinanalyzer.BackendConfig{
		Kind:          cfg.Backend.Kind,
		APIBaseURL:    cfg.Backend.APIBaseURL,
		ClientID:      cfg.Backend.ClientID,
		ClientSecret:  cfg.Backend.ClientSecret,
		AILabEndpoint: cfg.Backend.AILabEndpoint,
		AILabAPIKey:   cfg.Backend.AILabAPIKey,
		OllamaURL:     cfg.Backend.OllamaURL,
		LlamaCppURL:   cfg.Backend.LlamaCppURL,
		Model:         cfg.Backend.Model,
		Timeout:       cfg.Analysis.Timeout,
	}

	pc.Analysis.EnableMockAPI = cfg.Analysis.EnableMockAPI
	pc.Analysis.Timeout = cfg.Analysis.Timeout
	pc.Analysis.MaxBytes = cfg.Analysis.MaxBytes
	pc.Analysis.MinDimension = cfg.Analysis.MinDimension
	pc.Analysis.MaxDimension = cfg.Analysis.MaxDimension
	pc.Analysis.JPEGQuality = cfg.Analysis.JPEGQuality
	pc.Analysis.MockSeed = cfg.Analysis.MockSeed

	pc.Inspector.Sampler.Width = cfg.Capture.SampleWidth
	pc.Inspector.Sampler.Height = cfg.Capture.SampleHeight
	pc.Inspector.Evaluator.RadiusX = cfg.Quality.RadiusX
	pc.Inspector.Evaluator.RadiusY = cfg.Quality.RadiusY
	pc.Inspector.Thresholds = cfg.Quality.Thresholds
	pc.Inspector.MinImageSize = cfg.Analysis.MinDimension

	pc.Presenter.Locale = cfg.Presenter.Locale
	pc.Presenter.ExcellentScore = cfg.Presenter.ExcellentScore
	pc.Presenter.GoodScore = cfg.Presenter.GoodScore

	pc.Session.TickInterval = cfg.Capture.TickInterval
	pc.Session.Dwell = cfg.Capture.Dwell
	return pc
}

func newPipeline() (*skinanalyzer.SkinAnalyzer, error) {
	cfg := loader.Config()
	sa, err := skinanalyzer.New(pipelineConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Analysis pipeline ready",
		zap.String("provider", sa.Client().Provider()),
		zap.Bool("mock_api", cfg.Analysis.EnableMockAPI))
	return sa, nil
}

func openHistory(ctx context.Context) (history.Store, error) {
	cfg := loader.Config()
	return history.Open(ctx, cfg.Database.Driver, cfg.Database.URL, logger)
}

// openPublisher connects to MQTT when enabled; connection failures degrade to no publishing
func openPublisher(ctx context.Context) emitter.Publisher {
	cfg := loader.Config().MQTT
	if !cfg.Enabled {
		return emitter.Nop{}
	}
	e := emitter.NewMQTT(emitter.Config{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Topic:    cfg.Topic,
		QoS:      cfg.QoS,
		Encoding: cfg.Encoding,
		Username: cfg.Username,
		Password: cfg.Password,
	}, logger)
	if err := e.Connect(ctx); err != nil {
		logger.Warn("MQTT unavailable, results will not be published", zap.Error(err))
		return emitter.Nop{}
	}
	return e
}

// record stores and publishes a result; failures are logged, not returned
func record(ctx context.Context, store history.Store, pub emitter.Publisher, sessionID, origin string, r *types.AnalysisResult) {
	if err := store.Save(ctx, origin, r); err != nil {
		logger.Warn("Failed to store result", zap.String("id", r.ID), zap.Error(err))
	}
	if err := pub.Publish(ctx, emitter.ResultEvent(sessionID, origin, r)); err != nil {
		logger.Warn("Failed to publish result", zap.String("id", r.ID), zap.Error(err))
	}
}
