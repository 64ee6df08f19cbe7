package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 4096
)

var (
	// ErrMissingAPIKey is returned when a provider is configured without a key
	ErrMissingAPIKey = errors.New("API key is required")
	// ErrUnknownProvider is returned for an unsupported provider name
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Config holds client configuration
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int // Proactive pacing; 0 disables
}

// New creates a client for cfg.Provider
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic, "":
		return NewAnthropic(cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
