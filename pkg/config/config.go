// Package config loads service settings from roster.yaml, ROSTER_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Extraction modes for filter turns.
const (
	ExtractionLexical = "lexical"
	ExtractionModel   = "model"
)

// Config is the top-level service configuration.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	DBPath         string        `mapstructure:"db_path"`
	HistoryWindow  int           `mapstructure:"history_window"`
	FuzzyThreshold float64       `mapstructure:"fuzzy_threshold"`
	Extraction     string        `mapstructure:"extraction"`
	Model          ModelConfig   `mapstructure:"model"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
	Log            LogConfig     `mapstructure:"log"`
	Tracing        TracingConfig `mapstructure:"tracing"`
}

// ModelConfig is the call configuration of the model gateway.
type ModelConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BreakerConfig configures the circuit breaker around the model gateway.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `mapstructure:"max_failures"`
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration `mapstructure:"timeout"`
	// Interval clears failure counts while closed. Zero never clears them.
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig selects the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "roster.db")
	v.SetDefault("history_window", 20)
	v.SetDefault("fuzzy_threshold", 0.4)
	v.SetDefault("extraction", ExtractionLexical)
	v.SetDefault("model.name", "gemini-2.0-flash")
	v.SetDefault("model.timeout", 60*time.Second)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.interval", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")

	// Bind keys with no default so AutomaticEnv sees them during Unmarshal.
	_ = v.BindEnv("model.api_key")
	_ = v.BindEnv("model.base_url")
}

// New returns a viper instance wired with defaults and the ROSTER_ env prefix.
// Callers may bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("roster")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("roster")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads .env (if present), the config file (explicit path or roster.yaml
// in the working directory, if present) and the environment.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no sensible fallback. A missing API key
// is not an error here; the model gateway reports it per request.
func (c *Config) Validate() error {
	switch c.Extraction {
	case ExtractionLexical, ExtractionModel:
	default:
		return fmt.Errorf("extraction must be %q or %q, got %q", ExtractionLexical, ExtractionModel, c.Extraction)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history_window must be >= 0, got %d", c.HistoryWindow)
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy_threshold must be in (0, 1], got %v", c.FuzzyThreshold)
	}
	return nil
}
