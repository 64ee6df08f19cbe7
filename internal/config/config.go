// Package config loads runtime settings: defaults, then an optional YAML or
// TOML file, then environment variables. Environment always wins.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dshills/editalindex/internal/embedder"
	"github.com/dshills/editalindex/internal/llm"
	"github.com/dshills/editalindex/internal/storage"
)

// Environment variables read by Load
const (
	EnvDBDriver          = "EDITAL_DB_DRIVER"
	EnvDBPath            = "EDITAL_DB_PATH"
	EnvDatabaseURL       = "EDITAL_DATABASE_URL"
	EnvEmbeddingProvider = embedder.EnvProvider
	EnvOpenAIAPIKey      = embedder.EnvOpenAIAPIKey
	EnvJinaAPIKey        = embedder.EnvJinaAPIKey
	EnvAnthropicAPIKey   = "ANTHROPIC_API_KEY"
	EnvLLMProvider       = "EDITAL_LLM_PROVIDER"
	EnvLLMModel          = "EDITAL_LLM_MODEL"
	EnvAICleanup         = "EDITAL_AI_CLEANUP"
	EnvBankDir           = "BANK_DIR"
	EnvLogLevel          = "EDITAL_LOG_LEVEL"
)

// DefaultFile is read when Load is given no path and the file exists
const DefaultFile = "editalindex.yaml"

// ErrInvalid is wrapped by every Validate failure
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Cleanup   CleanupConfig   `yaml:"cleanup" toml:"cleanup"`
	Indexer   IndexerConfig   `yaml:"indexer" toml:"indexer"`
	Notice    NoticeConfig    `yaml:"notice" toml:"notice"`
	Search    SearchConfig    `yaml:"search" toml:"search"`
	LogLevel  string          `yaml:"log_level" toml:"log_level"`
}

type DatabaseConfig struct {
	Driver    string `yaml:"driver" toml:"driver"`
	Path      string `yaml:"path" toml:"path"`
	URL       string `yaml:"url" toml:"url"`
	Dimension int    `yaml:"dimension" toml:"dimension"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider" toml:"provider"`
	Model      string `yaml:"model" toml:"model"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"`
	CacheSize  int    `yaml:"cache_size" toml:"cache_size"`
}

type LLMConfig struct {
	Provider          string `yaml:"provider" toml:"provider"`
	Model             string `yaml:"model" toml:"model"`
	APIKey            string `yaml:"api_key" toml:"api_key"`
	BaseURL           string `yaml:"base_url" toml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute" toml:"requests_per_minute"`
}

// CleanupConfig controls the optional model repair of extracted text
type CleanupConfig struct {
	AI     bool `yaml:"ai" toml:"ai"`
	Always bool `yaml:"always" toml:"always"` // Send every document, not only dirty ones
}

type IndexerConfig struct {
	Roots    []string `yaml:"roots" toml:"roots"`
	Workers  int      `yaml:"workers" toml:"workers"`
	Taxonomy string   `yaml:"taxonomy" toml:"taxonomy"` // Optional YAML discipline table
}

type NoticeConfig struct {
	Workers    int `yaml:"workers" toml:"workers"`
	QueueSize  int `yaml:"queue_size" toml:"queue_size"`
	MaxNotices int `yaml:"max_notices" toml:"max_notices"`
}

type SearchConfig struct {
	Limit         int     `yaml:"limit" toml:"limit"`
	MinSimilarity float64 `yaml:"min_similarity" toml:"min_similarity"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = os.TempDir()
	}
	return Config{
		Database:  DatabaseConfig{Driver: storage.DriverSQLite, Path: filepath.Join(home, ".editalindex", "editalindex.db"), Dimension: 1536},
		Embedding: EmbeddingConfig{Dimensions: 1536, CacheSize: 10000},
		LLM:       LLMConfig{Provider: llm.ProviderAnthropic, TimeoutSeconds: 120, RequestsPerMinute: 50},
		Indexer:   IndexerConfig{Workers: 1},
		Notice:    NoticeConfig{Workers: 1, QueueSize: 16},
		Search:    SearchConfig{Limit: 10, MinSimilarity: 0.7},
		LogLevel:  "info",
	}
}

// Load reads config: defaults -> file -> env vars (env wins). A missing
// default file is ignored; a missing explicit file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return cfg, err
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: unsupported config format %q", ErrInvalid, filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(EnvDBDriver, &cfg.Database.Driver)
	setString(EnvDBPath, &cfg.Database.Path)
	setString(EnvDatabaseURL, &cfg.Database.URL)
	setString(EnvEmbeddingProvider, &cfg.Embedding.Provider)
	setString(EnvLLMProvider, &cfg.LLM.Provider)
	setString(EnvLLMModel, &cfg.LLM.Model)
	setString(EnvLogLevel, &cfg.LogLevel)

	if v := os.Getenv(EnvBankDir); v != "" {
		cfg.Indexer.Roots = filepath.SplitList(v)
	}
	if v := os.Getenv(EnvAICleanup); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, EnvAICleanup, v)
		}
		cfg.Cleanup.AI = on
	}

	// Provider keys fill whichever side is configured for that provider
	if cfg.Embedding.APIKey == "" {
		switch strings.ToLower(cfg.Embedding.Provider) {
		case embedder.ProviderOpenAI:
			cfg.Embedding.APIKey = os.Getenv(EnvOpenAIAPIKey)
		case embedder.ProviderJina:
			cfg.Embedding.APIKey = os.Getenv(EnvJinaAPIKey)
		}
	}
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case llm.ProviderAnthropic, "":
			cfg.LLM.APIKey = os.Getenv(EnvAnthropicAPIKey)
		case llm.ProviderOpenAI:
			cfg.LLM.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
	}
	return nil
}

// Validate reports settings that cannot work together
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Database.Driver) {
	case "", storage.DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case storage.DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url (or %s) is required for postgres", EnvDatabaseURL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Indexer.Workers < 1 {
		errs = append(errs, errors.New("indexer.workers must be at least 1"))
	}
	if c.Notice.Workers < 1 {
		errs = append(errs, errors.New("notice.workers must be at least 1"))
	}
	if c.Notice.MaxNotices < 0 {
		errs = append(errs, errors.New("notice.max_notices cannot be negative"))
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity >= 1 {
		errs = append(errs, errors.New("search.min_similarity must be in [0, 1)"))
	}
	if c.Cleanup.AI && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("cleanup.ai needs an llm api key"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// LLMEnabled reports whether a language model client can be built
func (c Config) LLMEnabled() bool {
	return c.LLM.APIKey != ""
}

// StorageConfig maps the database section to storage.Open's config
func (c Config) StorageConfig() storage.Config {
	dim := c.Database.Dimension
	if dim == 0 {
		dim = c.Embedding.Dimensions
	}
	return storage.Config{Driver: c.Database.Driver, Path: c.Database.Path, URL: c.Database.URL, Dimension: dim}
}

func (c Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:   c.Embedding.Provider,
		APIKey:     c.Embedding.APIKey,
		Model:      c.Embedding.Model,
		Endpoint:   c.Embedding.Endpoint,
		Dimensions: c.Embedding.Dimensions,
		CacheSize:  c.Embedding.CacheSize,
	}
}

func (c Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:          c.LLM.Provider,
		APIKey:            c.LLM.APIKey,
		BaseURL:           c.LLM.BaseURL,
		Model:             c.LLM.Model,
		Timeout:           time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		RequestsPerMinute: c.LLM.RequestsPerMinute,
	}
}

// Level is the configured slog level
func (c Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", s, err)
	}
	return l, nil
}
