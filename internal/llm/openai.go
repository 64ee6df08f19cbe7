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
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAI completes prompts with any OpenAI-compatible chat completions API
type OpenAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	pacer   *pacer
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAI creates an OpenAI-compatible client
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &OpenAI{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		pacer:   newPacer(cfg.RequestsPerMinute),
	}, nil
}

// Name returns the provider name
func (o *OpenAI) Name() string { return ProviderOpenAI }

// Complete sends a system + user message pair and returns the first choice
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if err := o.pacer.wait(ctx); err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, MaxTokens: req.MaxTokens})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: ProviderOpenAI, Kind: KindTransient, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Provider: ProviderOpenAI, Kind: KindTransient, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Provider: ProviderOpenAI,
			Kind:     Classify(resp.StatusCode, string(respBody)),
			Status:   resp.StatusCode,
			Message:  truncate(string(respBody), 500),
		}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &Error{Provider: ProviderOpenAI, Kind: KindMalformed, Message: "decode response: " + err.Error()}
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", &Error{Provider: ProviderOpenAI, Kind: KindMalformed, Message: "no choices returned"}
	}
	return chatResp.Choices[0].Message.Content, nil
}
