package embedder

import (
	"fmt"
	"os"
	"strings"
)

// EnvProvider selects the provider when set
const EnvProvider = "EDITAL_EMBEDDING_PROVIDER"

// Config holds embedder configuration
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	Endpoint   string
	Dimensions int
	CacheSize  int
}

// New creates an embedder with explicit configuration.
// An empty provider is resolved with DetectProvider.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}

	opts := []ProviderOption{WithModel(cfg.Model), WithDimension(cfg.Dimensions)}
	if cfg.Endpoint != "" {
		opts = append(opts, WithEndpoint(cfg.Endpoint))
	}

	var (
		emb Embedder
		err error
	)
	switch provider {
	case ProviderJina:
		emb, err = NewJinaProvider(cfg.APIKey, cache, opts...)
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.APIKey, cache, opts...)
	case ProviderLocal:
		emb, err = NewLocalProvider(cache, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return emb, nil
}

// DetectProvider returns the provider that would be used based on the
// current environment: an explicit EDITAL_EMBEDDING_PROVIDER, then
// whichever API key is present, then local.
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	return ProviderLocal
}
