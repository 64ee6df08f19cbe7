package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultAnthropicModel   = "claude-3-5-sonnet-latest"

	anthropicVersion = "2023-06-01"
)

// Anthropic completes prompts with the Messages API
type Anthropic struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	pacer   *pacer
}

type messagesRequest struct {
	Model     string            `json:"model"`
	Messages  []messagesMessage `json:"messages"`
	MaxTokens int               `json:"max_tokens"`
	System    string            `json:"system,omitempty"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropic creates an Anthropic client
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Anthropic{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		pacer:   newPacer(cfg.RequestsPerMinute),
	}, nil
}

// Name returns the provider name
func (a *Anthropic) Name() string { return ProviderAnthropic }

// Complete sends one user message and returns the concatenated text blocks
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	if err := a.pacer.wait(ctx); err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	body, err := json.Marshal(messagesRequest{
		Model:     model,
		Messages:  []messagesMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: maxTokens,
		System:    req.System,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: ProviderAnthropic, Kind: KindTransient, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Provider: ProviderAnthropic, Kind: KindTransient, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Provider: ProviderAnthropic,
			Kind:     Classify(resp.StatusCode, string(respBody)),
			Status:   resp.StatusCode,
			Message:  truncate(string(respBody), 500),
		}
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return "", &Error{Provider: ProviderAnthropic, Kind: KindMalformed, Message: "decode response: " + err.Error()}
	}
	if msgResp.Error != nil {
		return "", &Error{Provider: ProviderAnthropic, Kind: Classify(resp.StatusCode, msgResp.Error.Message), Message: msgResp.Error.Message}
	}

	var out strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", &Error{Provider: ProviderAnthropic, Kind: KindMalformed, Message: "no text content returned"}
	}
	return out.String(), nil
}
