package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/internal/logging"
	"github.com/menta2k/skin-analyzer/pkg/analysis"
	"github.com/menta2k/skin-analyzer/pkg/camera"
	"github.com/menta2k/skin-analyzer/pkg/quality"
	"github.com/menta2k/skin-analyzer/pkg/sampler"
	"github.com/menta2k/skin-analyzer/pkg/trigger"
)

// EnvPrefix prefixes environment overrides, e.g. SKIN_SERVER_PORT
const EnvPrefix = "SKIN"

// Config is the top-level configuration
type Config struct {
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Presenter PresenterConfig `mapstructure:"presenter"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

// AnalysisConfig holds analysis client limits
type AnalysisConfig struct {
	// EnableMockAPI is true unless analysis.enable_mock_api / ENABLE_MOCK_API is "false"
	EnableMockAPI bool          `mapstructure:"-"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBytes      int           `mapstructure:"max_bytes"`
	MinDimension  int           `mapstructure:"min_dimension"`
	MaxDimension  int           `mapstructure:"max_dimension"`
	JPEGQuality   int           `mapstructure:"jpeg_quality"`
	MockSeed      int64         `mapstructure:"mock_seed"`
}

// BackendConfig selects and configures the analysis provider
type BackendConfig struct {
	// Kind is one of none, remote, ailab, ollama, llamacpp
	Kind          string `mapstructure:"kind"`
	APIBaseURL    string `mapstructure:"api_base_url"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	AILabEndpoint string `mapstructure:"ailab_endpoint"`
	AILabAPIKey   string `mapstructure:"ailab_api_key"`
	OllamaURL     string `mapstructure:"ollama_url"`
	LlamaCppURL   string `mapstructure:"llamacpp_url"`
	Model         string `mapstructure:"model"`
}

// QualityConfig holds the guide ellipse and verdict thresholds
type QualityConfig struct {
	RadiusX    float64            `mapstructure:"radius_x"`
	RadiusY    float64            `mapstructure:"radius_y"`
	Thresholds quality.Thresholds `mapstructure:"thresholds"`
}

// CaptureConfig holds the live loop timing and camera selection
type CaptureConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Dwell        time.Duration `mapstructure:"dwell"`
	SampleWidth  int           `mapstructure:"sample_width"`
	SampleHeight int           `mapstructure:"sample_height"`
	Camera       camera.Config `mapstructure:"camera"`
}

// PresenterConfig holds display settings
type PresenterConfig struct {
	Locale         string `mapstructure:"locale"`
	ExcellentScore int    `mapstructure:"excellent_score"`
	GoodScore      int    `mapstructure:"good_score"`
}

// ServerConfig holds HTTP service settings
type ServerConfig struct {
	Port string `mapstructure:"port"`
	// RateLimit is the number of analyze requests allowed per client per minute
	RateLimit     uint `mapstructure:"rate_limit"`
	IsDevelopment bool `mapstructure:"is_development"`
}

// DatabaseConfig selects the history store
type DatabaseConfig struct {
	// Driver is memory or postgres
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// MQTTConfig holds result event publishing settings
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
	// Encoding is json or msgpack
	Encoding string `mapstructure:"encoding"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// setDefaults sets the default values for the configuration
func setDefaults(v *viper.Viper) {
	def := analysis.DefaultConfig()
	v.SetDefault("analysis.enable_mock_api", "true")
	v.SetDefault("analysis.timeout", def.Timeout)
	v.SetDefault("analysis.max_bytes", def.MaxBytes)
	v.SetDefault("analysis.min_dimension", def.MinDimension)
	v.SetDefault("analysis.max_dimension", def.MaxDimension)
	v.SetDefault("analysis.jpeg_quality", def.JPEGQuality)
	v.SetDefault("analysis.mock_seed", 0)

	v.SetDefault("backend.kind", "none")
	v.SetDefault("backend.ollama_url", "http://localhost:11434")
	v.SetDefault("backend.llamacpp_url", "http://localhost:8080")
	v.SetDefault("backend.model", "")
	v.SetDefault("backend.ailab_endpoint", "")

	ev := quality.DefaultEvaluatorConfig()
	th := quality.DefaultThresholds()
	v.SetDefault("quality.radius_x", ev.RadiusX)
	v.SetDefault("quality.radius_y", ev.RadiusY)
	v.SetDefault("quality.thresholds.max_overexposure", th.MaxOverexposure)
	v.SetDefault("quality.thresholds.max_underexposure", th.MaxUnderexposure)
	v.SetDefault("quality.thresholds.min_lighting", th.MinLighting)
	v.SetDefault("quality.thresholds.good_lighting_low", th.GoodLightingLow)
	v.SetDefault("quality.thresholds.good_lighting_high", th.GoodLightingHigh)
	v.SetDefault("quality.thresholds.good_coverage", th.GoodCoverage)
	v.SetDefault("quality.thresholds.warn_coverage", th.WarnCoverage)

	cam := camera.DefaultConfig()
	v.SetDefault("capture.tick_interval", trigger.DefaultInterval)
	v.SetDefault("capture.dwell", trigger.DefaultDwell)
	v.SetDefault("capture.sample_width", sampler.DefaultWidth)
	v.SetDefault("capture.sample_height", sampler.DefaultHeight)
	v.SetDefault("capture.camera.kind", cam.Kind)
	v.SetDefault("capture.camera.device", cam.Device)
	v.SetDefault("capture.camera.width", cam.Width)
	v.SetDefault("capture.camera.height", cam.Height)
	v.SetDefault("capture.camera.timeout", cam.Timeout)
	v.SetDefault("capture.camera.dir", "")
	v.SetDefault("capture.camera.url", "")

	v.SetDefault("presenter.locale", "zh-TW")
	v.SetDefault("presenter.excellent_score", 80)
	v.SetDefault("presenter.good_score", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.directory", "")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.console", true)

	v.SetDefault("server.port", "8090")
	v.SetDefault("server.rate_limit", 30)
	v.SetDefault("server.is_development", false)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "skin-analyzer")
	v.SetDefault("mqtt.topic", "skin-analyzer/results")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.encoding", "json")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
}

// bindPlainEnv maps the deployment's unprefixed variable names onto keys
func bindPlainEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"analysis.enable_mock_api": "ENABLE_MOCK_API",
		"backend.api_base_url":     "API_BASE_URL",
		"backend.client_id":        "PROVIDER_CLIENT_ID",
		"backend.client_secret":    "PROVIDER_CLIENT_SECRET",
		"backend.ailab_api_key":    "AILAB_API_KEY",
		"database.url":             "DATABASE_URL",
	}
	replacer := strings.NewReplacer(".", "_")
	for key, plain := range bindings {
		prefixed := EnvPrefix + "_" + strings.ToUpper(replacer.Replace(key))
		if err := v.BindEnv(key, prefixed, plain); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Loader reads configuration and keeps it current when the file changes
type Loader struct {
	v      *viper.Viper
	logger *zap.Logger

	mu      sync.RWMutex
	current *Config
}

// Load reads defaults, the optional YAML file and the environment. An empty
// path searches ./config.yaml and the user config directory.
func Load(path string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := DefaultDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindPlainEnv(v); err != nil {
		return nil, err
	}

	// A missing file is fine; defaults and env vars will be used
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Loader{v: v, logger: logger, current: cfg}, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.Analysis.EnableMockAPI = analysis.MockEnabled(v.GetString("analysis.enable_mock_api"))
	return &cfg, nil
}

// Config returns the current configuration
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// File returns the config file in use, or "" when running on defaults
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the file on change and hands valid configurations to onChange.
// Invalid edits are logged and ignored.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info("Configuration file changed, reloading", zap.String("file", e.Name))
		cfg, err := decode(l.v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			l.logger.Error("Error reloading configuration", zap.Error(err))
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// WriteDefault writes the default configuration as YAML
func WriteDefault(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis.timeout must be positive")
	}
	if c.Analysis.JPEGQuality < 1 || c.Analysis.JPEGQuality > 100 {
		return fmt.Errorf("analysis.jpeg_quality must be between 1 and 100")
	}
	if c.Analysis.MinDimension < 1 || c.Analysis.MinDimension > c.Analysis.MaxDimension {
		return fmt.Errorf("analysis.min_dimension must be positive and not exceed analysis.max_dimension")
	}
	if c.Analysis.MaxBytes < 1 {
		return fmt.Errorf("analysis.max_bytes must be positive")
	}

	switch c.Backend.Kind {
	case "", "none", "ollama", "llamacpp":
	case "remote":
		if c.Backend.APIBaseURL == "" {
			return fmt.Errorf("backend.api_base_url is required for the remote backend")
		}
	case "ailab":
		if c.Backend.AILabAPIKey == "" {
			return fmt.Errorf("backend.ailab_api_key is required for the ailab backend")
		}
	default:
		return fmt.Errorf("backend.kind %q is not one of none, remote, ailab, ollama, llamacpp", c.Backend.Kind)
	}

	if c.Quality.RadiusX <= 0 || c.Quality.RadiusX > 0.5 || c.Quality.RadiusY <= 0 || c.Quality.RadiusY > 0.5 {
		return fmt.Errorf("quality.radius_x and quality.radius_y must be in (0, 0.5]")
	}
	if err := c.Quality.Thresholds.Validate(); err != nil {
		return err
	}

	if c.Capture.TickInterval <= 0 || c.Capture.Dwell <= 0 {
		return fmt.Errorf("capture.tick_interval and capture.dwell must be positive")
	}

	switch c.Presenter.Locale {
	case "zh-TW", "en":
	default:
		return fmt.Errorf("presenter.locale must be zh-TW or en")
	}
	if c.Presenter.GoodScore > c.Presenter.ExcellentScore {
		return fmt.Errorf("presenter.good_score must not exceed presenter.excellent_score")
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" || c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.broker and mqtt.topic are required when mqtt is enabled")
		}
		if c.MQTT.Encoding != "json" && c.MQTT.Encoding != "msgpack" {
			return fmt.Errorf("mqtt.encoding must be json or msgpack")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	return nil
}

// DefaultDir returns the per-user configuration directory
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "skin-analyzer")
}
