// Package config loads the process-start configuration: built-in defaults,
// then a TOML file, then a .env file, then the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/poiesic/ragpilot/gateway"
	"github.com/poiesic/ragpilot/ingestion"
)

// Environment variables read by Load.
const (
	EnvConfigFile = "RAGPILOT_CONFIG"
	EnvDotEnvFile = "RAGPILOT_ENV_FILE"
	EnvBaseURL    = "RAGPILOT_BASE_URL"
	EnvBasePath   = "RAGPILOT_BASE_PATH"
	EnvTimeout    = "RAGPILOT_TIMEOUT"
	EnvMock       = "RAGPILOT_MOCK"
	EnvJournal    = "RAGPILOT_JOURNAL"
	EnvLogLevel   = "RAGPILOT_LOG_LEVEL"
	EnvModel      = "RAGPILOT_MODEL"
	EnvModelURL   = "RAGPILOT_MODEL_URL"
	EnvModelToken = "RAGPILOT_MODEL_TOKEN"
)

const (
	defaultConfigFile = "ragpilot.toml"
	defaultDotEnvFile = ".env"
)

// Config is the complete client configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Mock    bool          `toml:"mock"`
	Journal JournalConfig `toml:"journal"`
	Ingest  IngestConfig  `toml:"ingest"`
	Query   QueryConfig   `toml:"query"`
	Model   ModelConfig   `toml:"model"`
	Log     LogConfig     `toml:"log"`
}

type BackendConfig struct {
	BaseURL   string   `toml:"base_url"`
	BasePath  string   `toml:"base_path"`
	Timeout   Duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

// JournalConfig locates the local run history. An empty path keeps the
// history in memory for the lifetime of the process.
type JournalConfig struct {
	Path      string   `toml:"path"`
	Retention Duration `toml:"retention"`
}

type IngestConfig struct {
	ChunkSize   int `toml:"chunk_size"`
	OverlapSize int `toml:"overlap_size"`
	Workers     int `toml:"workers"`
}

type QueryConfig struct {
	TopK int `toml:"top_k"`
}

// ModelConfig names an OpenAI-compatible chat model that writes the
// simulated answers of mock mode. An empty Name keeps the canned reply.
type ModelConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// Enabled reports whether a model is configured.
func (m ModelConfig) Enabled() bool {
	return m.Name != ""
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	gw := gateway.DefaultConfig()
	return &Config{
		Backend: BackendConfig{
			BaseURL:   gw.BaseURL,
			BasePath:  gw.BasePath,
			Timeout:   Duration{gw.Timeout},
			UserAgent: gw.UserAgent,
		},
		Journal: JournalConfig{
			Retention: Duration{30 * 24 * time.Hour},
		},
		Ingest: IngestConfig{
			ChunkSize:   ingestion.DefaultChunkSize,
			OverlapSize: ingestion.DefaultOverlapSize,
			Workers:     2,
		},
		Query: QueryConfig{
			TopK: 5,
		},
		Model: ModelConfig{
			BaseURL: "http://localhost:11434/v1",
			Token:   "none",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from the defaults, the TOML file named by
// RAGPILOT_CONFIG (ragpilot.toml when unset), the .env file named by
// RAGPILOT_ENV_FILE (.env when unset) and the environment. Missing files
// are skipped. Variables already present in the environment take precedence
// over the .env file. The result is validated.
func Load() (*Config, error) {
	cfg := Default()

	configPath := getEnv(EnvConfigFile, defaultConfigFile)
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", configPath, err)
		}
	}

	dotenv := map[string]string{}
	envPath := getEnv(EnvDotEnvFile, defaultDotEnvFile)
	if _, err := os.Stat(envPath); err == nil {
		values, err := godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", envPath, err)
		}
		dotenv = values
	}

	if err := overrideByEnv(cfg, dotenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideByEnv(cfg *Config, dotenv map[string]string) error {
	lookup := func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := dotenv[key]
		return value, ok
	}

	if v, ok := lookup(EnvBaseURL); ok {
		cfg.Backend.BaseURL = v
	}
	if v, ok := lookup(EnvBasePath); ok {
		cfg.Backend.BasePath = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		if err := cfg.Backend.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
	}
	if v, ok := lookup(EnvMock); ok && v != "" {
		mock, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMock, err)
		}
		cfg.Mock = mock
	}
	if v, ok := lookup(EnvJournal); ok {
		cfg.Journal.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvModel); ok {
		cfg.Model.Name = v
	}
	if v, ok := lookup(EnvModelURL); ok && v != "" {
		cfg.Model.BaseURL = v
	}
	if v, ok := lookup(EnvModelToken); ok && v != "" {
		cfg.Model.Token = v
	}
	return nil
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	if err := c.Gateway().Validate(); err != nil {
		return err
	}
	if c.Ingest.ChunkSize <= 0 {
		return errors.New("config: ingest.chunk_size must be positive")
	}
	if c.Ingest.OverlapSize < 0 || c.Ingest.OverlapSize >= c.Ingest.ChunkSize {
		return fmt.Errorf("config: ingest.overlap_size must be in [0, %d)", c.Ingest.ChunkSize)
	}
	if c.Ingest.Workers < 1 {
		return errors.New("config: ingest.workers must be at least 1")
	}
	if c.Query.TopK < 1 {
		return errors.New("config: query.top_k must be at least 1")
	}
	if c.Journal.Retention.Duration < 0 {
		return errors.New("config: journal.retention cannot be negative")
	}
	if c.Model.Enabled() {
		u, err := url.Parse(c.Model.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: model.base_url %q must be an absolute URL", c.Model.BaseURL)
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Gateway returns the normalized backend client configuration.
func (c *Config) Gateway() *gateway.Config {
	gw := gateway.NewConfig(
		gateway.WithBaseURL(c.Backend.BaseURL),
		gateway.WithBasePath(c.Backend.BasePath),
		gateway.WithTimeout(c.Backend.Timeout.Duration),
		gateway.WithUserAgent(c.Backend.UserAgent),
	)
	gw.Normalize()
	return gw
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: invalid log level %q (must be debug, info, warn, or error)", level)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
