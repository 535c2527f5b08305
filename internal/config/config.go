// Package config provides configuration loading for prefd.
package config

import (
	"fmt"
	"time"
)

// Config is the full prefd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server" json:"server"`
	Logging    LoggingConfig    `koanf:"logging" json:"logging"`
	Store      StoreConfig      `koanf:"store" json:"store"`
	Extraction ExtractionConfig `koanf:"extraction" json:"extraction"`
	Pipeline   PipelineConfig   `koanf:"pipeline" json:"pipeline"`
	Telemetry  TelemetryConfig  `koanf:"telemetry" json:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string   `koanf:"host" json:"host"`
	Port            int      `koanf:"port" json:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

// Address returns the host:port the server binds to.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level" json:"level"`

	// Format is json or console.
	Format string `koanf:"format" json:"format"`
}

// StoreConfig selects and configures the profile store backend.
type StoreConfig struct {
	// Backend is memory or nats.
	Backend string `koanf:"backend" json:"backend"`

	NATS NATSConfig `koanf:"nats" json:"nats"`
}

// NATSConfig configures the JetStream profile store.
type NATSConfig struct {
	URL    string `koanf:"url" json:"url"`
	Bucket string `koanf:"bucket" json:"bucket"`
}

// ExtractionConfig selects the candidate extraction provider. Setting
// provider to "disabled" turns extraction off entirely.
type ExtractionConfig struct {
	// Provider is one of heuristic, anthropic, openai, langchain, disabled.
	Provider string `koanf:"provider" json:"provider"`

	// MinConfidence drops heuristic matches below this weight. Zero means
	// no floor: every pattern match is kept.
	MinConfidence float64 `koanf:"min_confidence" json:"min_confidence"`

	// MaxWindowTurns bounds how many turns a single extraction window may
	// carry. Oversized windows are rejected, not truncated.
	MaxWindowTurns int `koanf:"max_window_turns" json:"max_window_turns"`

	Providers map[string]ProviderConfig `koanf:"providers" json:"providers"`
}

// ProviderConfig holds the settings for one LLM provider.
type ProviderConfig struct {
	Model     string   `koanf:"model" json:"model"`
	APIKey    Secret   `koanf:"api_key" json:"api_key"`
	BaseURL   string   `koanf:"base_url" json:"base_url"`
	MaxTokens int      `koanf:"max_tokens" json:"max_tokens"`
	Timeout   Duration `koanf:"timeout" json:"timeout"`
}

// PipelineConfig tunes reconciliation and the pipeline's retry bounds.
type PipelineConfig struct {
	// OverrideThreshold scales the active record's confidence when a
	// disagreeing candidate tries to replace it. 1.0 requires
	// equal-or-greater confidence; zero means any disagreeing candidate
	// overrides.
	OverrideThreshold float64 `koanf:"override_threshold" json:"override_threshold"`

	// MaxHistory bounds the per-record audit history.
	MaxHistory int `koanf:"max_history" json:"max_history"`

	MaxExtractRetries int      `koanf:"max_extract_retries" json:"max_extract_retries"`
	ExtractBackoff    Duration `koanf:"extract_backoff" json:"extract_backoff"`
	MaxSaveRetries    int      `koanf:"max_save_retries" json:"max_save_retries"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled" json:"enabled"`
	Endpoint    string  `koanf:"endpoint" json:"endpoint"`
	ServiceName string  `koanf:"service_name" json:"service_name"`
	SampleRate  float64 `koanf:"sample_rate" json:"sample_rate"`
	Insecure    bool    `koanf:"insecure" json:"insecure"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Store defaults (memory is default - embedded, no external deps)
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.NATS.URL == "" {
		cfg.Store.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Store.NATS.Bucket == "" {
		cfg.Store.NATS.Bucket = "preference_profiles"
	}

	// Extraction defaults. MinConfidence and OverrideThreshold are not
	// defaulted here: zero is a meaningful value for both, so the loader
	// fills them in only when the key is absent from every source.
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "heuristic"
	}
	if cfg.Extraction.MaxWindowTurns == 0 {
		cfg.Extraction.MaxWindowTurns = 50
	}

	// Pipeline defaults
	if cfg.Pipeline.MaxHistory == 0 {
		cfg.Pipeline.MaxHistory = 10
	}
	if cfg.Pipeline.MaxExtractRetries == 0 {
		cfg.Pipeline.MaxExtractRetries = 3
	}
	if cfg.Pipeline.ExtractBackoff == 0 {
		cfg.Pipeline.ExtractBackoff = Duration(1 * time.Second)
	}
	if cfg.Pipeline.MaxSaveRetries == 0 {
		cfg.Pipeline.MaxSaveRetries = 3
	}

	// Telemetry defaults
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "prefd"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}

	switch c.Store.Backend {
	case "memory", "nats":
	default:
		return fmt.Errorf("store.backend %q must be memory or nats", c.Store.Backend)
	}

	switch c.Extraction.Provider {
	case "heuristic", "anthropic", "openai", "langchain", "disabled":
	default:
		return fmt.Errorf("extraction.provider %q unknown", c.Extraction.Provider)
	}
	if c.Extraction.MinConfidence < 0 || c.Extraction.MinConfidence > 1 {
		return fmt.Errorf("extraction.min_confidence %v must be in [0,1]", c.Extraction.MinConfidence)
	}
	if c.Extraction.MaxWindowTurns < 1 {
		return fmt.Errorf("extraction.max_window_turns %d must be at least 1", c.Extraction.MaxWindowTurns)
	}

	if c.Pipeline.OverrideThreshold < 0 {
		return fmt.Errorf("pipeline.override_threshold %v cannot be negative", c.Pipeline.OverrideThreshold)
	}
	if c.Pipeline.MaxHistory < 1 {
		return fmt.Errorf("pipeline.max_history %d must be at least 1", c.Pipeline.MaxHistory)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate %v must be in [0,1]", c.Telemetry.SampleRate)
	}

	return nil
}
