package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDBDriver, EnvDBPath, EnvDatabaseURL, EnvEmbeddingProvider,
		EnvOpenAIAPIKey, EnvJinaAPIKey, EnvAnthropicAPIKey, EnvLLMProvider, EnvLLMModel,
		EnvAICleanup, EnvBankDir, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.Equal(t, 1, cfg.Indexer.Workers)
	assert.Equal(t, 0.7, cfg.Search.MinSimilarity)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cfg.yaml", `
database:
  path: /tmp/bank.db
indexer:
  roots: [/bank/a, /bank/b]
  workers: 4
notice:
  max_notices: 1
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/bank.db", cfg.Database.Path)
	assert.Equal(t, []string{"/bank/a", "/bank/b"}, cfg.Indexer.Roots)
	assert.Equal(t, 4, cfg.Indexer.Workers)
	assert.Equal(t, 1, cfg.Notice.MaxNotices)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	// Untouched sections keep their defaults
	assert.Equal(t, 16, cfg.Notice.QueueSize)
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cfg.toml", `
log_level = "warn"

[llm]
provider = "openai"
model = "gpt-4o-mini"
timeout_seconds = 30

[search]
min_similarity = 0.8
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 0.8, cfg.Search.MinSimilarity)
	assert.Equal(t, 30*time.Second, cfg.LLMConfig().Timeout)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "explicit missing file must fail")

	_, err = Load(writeFile(t, "cfg.json", `{}`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeFile(t, "cfg.yaml", "indexer: [unclosed"))
	assert.Error(t, err)
}

func TestLoadWithoutDefaultFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Database, cfg.Database)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cfg.yaml", "database:\n  path: /from/file.db\nlog_level: debug\n")
	t.Setenv(EnvDBPath, "/from/env.db")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvBankDir, "/bank/one"+string(os.PathListSeparator)+"/bank/two")
	t.Setenv(EnvAICleanup, "true")
	t.Setenv(EnvAnthropicAPIKey, "sk-ant")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Database.Path)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, []string{"/bank/one", "/bank/two"}, cfg.Indexer.Roots)
	assert.True(t, cfg.Cleanup.AI)
	assert.Equal(t, "sk-ant", cfg.LLM.APIKey)
	assert.True(t, cfg.LLMEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestProviderKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEmbeddingProvider, "openai")
	t.Setenv(EnvLLMProvider, "openai")
	t.Setenv(EnvOpenAIAPIKey, "sk-openai")
	t.Setenv(EnvAnthropicAPIKey, "sk-ant")

	cfg, err := Load(writeFile(t, "cfg.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.Embedding.APIKey)
	assert.Equal(t, "sk-openai", cfg.LLM.APIKey)
	assert.Equal(t, "sk-openai", cfg.EmbedderConfig().APIKey)
}

func TestInvalidAICleanupFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAICleanup, "sometimes")
	_, err := Load(writeFile(t, "cfg.yaml", ""))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"no indexer workers", func(c *Config) { c.Indexer.Workers = 0 }},
		{"no notice workers", func(c *Config) { c.Notice.Workers = 0 }},
		{"negative notice limit", func(c *Config) { c.Notice.MaxNotices = -1 }},
		{"similarity out of range", func(c *Config) { c.Search.MinSimilarity = 1 }},
		{"ai cleanup without key", func(c *Config) { c.Cleanup.AI = true }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestStorageConfig(t *testing.T) {
	cfg := Default()
	cfg.Database.Dimension = 0
	cfg.Embedding.Dimensions = 768
	assert.Equal(t, 768, cfg.StorageConfig().Dimension)
}
