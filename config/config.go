// Package config holds the wizard server configuration and the watcher that
// hot-reloads the intent vocabulary.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/cache"
	"github.com/GoCodeAlone/workflow-wizard/metrics"
	"github.com/GoCodeAlone/workflow-wizard/observability/tracing"
	"gopkg.in/yaml.v3"
)

// Store drivers accepted by StoreConfig.Driver.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the wizard server configuration document.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Generation GenerationConfig `yaml:"generation"`
	Intent     IntentConfig     `yaml:"intent"`
	Cache      cache.Config     `yaml:"cache"`
	Store      StoreConfig      `yaml:"store"`
	Tracing    tracing.Config   `yaml:"tracing"`
	Metrics    metrics.Config   `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string          `yaml:"addr"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	APIKey          string          `yaml:"apiKey"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig is a per-client token bucket. A zero RequestsPerSecond
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GenerationConfig selects the actor generation backend.
type GenerationConfig struct {
	Provider  string  `yaml:"provider"`
	BatchSize int     `yaml:"batchSize"`
	BatchRate float64 `yaml:"batchRate"`
	// TemplateFallback retries a failed batch on the template generator
	// instead of failing the run.
	TemplateFallback bool            `yaml:"templateFallback"`
	Anthropic        AnthropicConfig `yaml:"anthropic"`
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey    string        `yaml:"apiKey"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"baseURL"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"maxTokens"`
}

// IntentConfig points at the vocabulary and template files. Empty paths use
// the built-in tables.
type IntentConfig struct {
	VocabularyPath  string        `yaml:"vocabularyPath"`
	TemplatesPath   string        `yaml:"templatesPath"`
	WatchVocabulary bool          `yaml:"watchVocabulary"`
	WatchDebounce   time.Duration `yaml:"watchDebounce"`
}

// StoreConfig selects the run history store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       RateLimitConfig{RequestsPerSecond: 10, Burst: 20},
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Generation: GenerationConfig{
			Provider:  string(ai.ProviderAuto),
			BatchSize: ai.BatchSize,
			Anthropic: AnthropicConfig{Timeout: 2 * time.Minute, MaxTokens: 8192},
		},
		Intent:  IntentConfig{WatchDebounce: 500 * time.Millisecond},
		Cache:   cache.DefaultConfig(),
		Store:   StoreConfig{Driver: StoreMemory, Path: "wizard.db"},
		Tracing: tracing.DefaultConfig(),
		Metrics: metrics.DefaultConfig(),
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("server.rateLimit.requestsPerSecond must not be negative"))
	}
	if c.Server.RateLimit.RequestsPerSecond > 0 && c.Server.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("server.rateLimit.burst must be positive when limiting is enabled"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}

	switch ai.Provider(c.Generation.Provider) {
	case ai.ProviderAuto, ai.ProviderTemplate, ai.ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("generation.provider %q is not auto, template or anthropic", c.Generation.Provider))
	}
	if c.Generation.BatchSize < 1 || c.Generation.BatchSize > ai.BatchSize {
		errs = append(errs, fmt.Errorf("generation.batchSize must be between 1 and %d", ai.BatchSize))
	}
	if c.Generation.BatchRate < 0 {
		errs = append(errs, errors.New("generation.batchRate must not be negative"))
	}
	if ai.Provider(c.Generation.Provider) == ai.ProviderAnthropic && c.Generation.Anthropic.APIKey == "" {
		errs = append(errs, errors.New("generation.anthropic.apiKey is required for the anthropic provider"))
	}

	if c.Intent.WatchVocabulary && c.Intent.VocabularyPath == "" {
		errs = append(errs, errors.New("intent.watchVocabulary requires intent.vocabularyPath"))
	}

	switch c.Cache.Backend {
	case cache.BackendNone, cache.BackendMemory, cache.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not none, memory or redis", c.Cache.Backend))
	}

	switch c.Store.Driver {
	case StoreNone, StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not none, memory or sqlite", c.Store.Driver))
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
