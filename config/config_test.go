package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points Load at files inside a temp dir and clears every override.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigFile, filepath.Join(dir, "ragpilot.toml"))
	t.Setenv(EnvDotEnvFile, filepath.Join(dir, ".env"))
	for _, key := range []string{EnvBaseURL, EnvBasePath, EnvTimeout, EnvMock, EnvJournal, EnvLogLevel,
		EnvModel, EnvModelURL, EnvModelToken} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "http://localhost:5000/api/v1", cfg.Gateway().Endpoint())
	assert.Equal(t, 60*time.Second, cfg.Backend.Timeout.Duration)
	assert.False(t, cfg.Mock)
	assert.Empty(t, cfg.Journal.Path, "in-memory journal by default")
	assert.Equal(t, 100, cfg.Ingest.ChunkSize)
	assert.Equal(t, 20, cfg.Ingest.OverlapSize)
	assert.False(t, cfg.Model.Enabled(), "canned mock answers by default")
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	content := `
mock = true

[backend]
base_url = "https://rag.example.com/"
base_path = "api/v2"
timeout = "2m"

[journal]
path = "/var/lib/ragpilot"
retention = "168h"

[ingest]
chunk_size = 500
overlap_size = 50
workers = 4

[query]
top_k = 8

[model]
name = "llama3"
base_url = "http://gpu-box:11434/v1"

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragpilot.toml"), []byte(content), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Mock)
	assert.Equal(t, "https://rag.example.com/api/v2", cfg.Gateway().Endpoint())
	assert.Equal(t, 2*time.Minute, cfg.Backend.Timeout.Duration)
	assert.Equal(t, "/var/lib/ragpilot", cfg.Journal.Path)
	assert.Equal(t, 7*24*time.Hour, cfg.Journal.Retention.Duration)
	assert.Equal(t, IngestConfig{ChunkSize: 500, OverlapSize: 50, Workers: 4}, cfg.Ingest)
	assert.Equal(t, 8, cfg.Query.TopK)
	assert.Equal(t, ModelConfig{Name: "llama3", BaseURL: "http://gpu-box:11434/v1", Token: "none"}, cfg.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragpilot.toml"),
		[]byte("[backend]\nbase_url = \"http://from-file:1\"\ntimeout = \"5s\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("RAGPILOT_BASE_URL=http://from-dotenv:2\nRAGPILOT_MOCK=true\nRAGPILOT_TIMEOUT=9s\n"), 0o600))
	t.Setenv(EnvTimeout, "15s")
	t.Setenv(EnvModel, "mistral")
	t.Setenv(EnvModelToken, "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://from-dotenv:2", cfg.Backend.BaseURL, ".env overrides the file")
	assert.True(t, cfg.Mock)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout.Duration, "environment overrides .env")
	assert.Equal(t, "mistral", cfg.Model.Name)
	assert.Equal(t, "secret", cfg.Model.Token)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"bad timeout", map[string]string{EnvTimeout: "soon"}, ""},
		{"bad mock", map[string]string{EnvMock: "maybe"}, ""},
		{"bad url", map[string]string{EnvBaseURL: "localhost:5000"}, ""},
		{"bad level", map[string]string{EnvLogLevel: "loud"}, ""},
		{"bad toml", nil, "mock = \n"},
		{"bad overlap", nil, "[ingest]\nchunk_size = 10\noverlap_size = 10\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.file != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "ragpilot.toml"), []byte(tt.file), 0o600))
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk", func(c *Config) { c.Ingest.ChunkSize = 0 }},
		{"negative overlap", func(c *Config) { c.Ingest.OverlapSize = -1 }},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"zero top-k", func(c *Config) { c.Query.TopK = 0 }},
		{"negative retention", func(c *Config) { c.Journal.Retention.Duration = -time.Hour }},
		{"negative timeout", func(c *Config) { c.Backend.Timeout.Duration = -time.Second }},
		{"relative model url", func(c *Config) { c.Model = ModelConfig{Name: "llama3", BaseURL: "localhost:11434"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
