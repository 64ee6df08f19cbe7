package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   Kind
	}{
		{429, `{"error":{"type":"rate_limit_error"}}`, KindRateLimited},
		{429, `{"error":{"code":"insufficient_quota"}}`, KindQuotaExceeded},
		{402, ``, KindQuotaExceeded},
		{400, `Your credit balance is too low`, KindQuotaExceeded},
		{400, `invalid request`, KindUnknown},
		{500, ``, KindTransient},
		{529, `overloaded`, KindTransient},
		{401, `unauthorized`, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status, tt.body))
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := &Error{Provider: "p", Kind: KindRateLimited, Status: 429}
	wrapped := fmt.Errorf("normalize: %w", base)

	assert.Equal(t, KindRateLimited, KindOf(wrapped))
	assert.True(t, IsQuotaOrRateLimit(wrapped))
	assert.False(t, IsQuotaOrRateLimit(errors.New("plain")))
	assert.False(t, IsQuotaOrRateLimit(&Error{Kind: KindMalformed}))
	assert.Contains(t, base.Error(), "rate_limited")
}

func TestAnthropicComplete(t *testing.T) {
	var got messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}]}`))
	}))
	defer server.Close()

	client, err := NewAnthropic(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), Request{System: "sys", Prompt: "hi", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, 10, got.MaxTokens)
	assert.Equal(t, DefaultAnthropicModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestAnthropicErrorKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	client, err := NewAnthropic(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, KindRateLimited, llmErr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, llmErr.Status)
}

func TestAnthropicMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client, err := NewAnthropic(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "hi"})
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestOpenAIComplete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAI(Config{APIKey: "test-key", BaseURL: server.URL, Model: "m"})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), Request{System: "sys", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "m", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestOpenAIQuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"insufficient_quota","message":"You exceeded your current quota"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAI(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "hi"})
	assert.Equal(t, KindQuotaExceeded, KindOf(err))
}

func TestNewFactory(t *testing.T) {
	_, err := New(Config{Provider: "anthropic"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err := New(Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Name())

	_, err = New(Config{Provider: "other", APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestPacerHonoursContext(t *testing.T) {
	p := newPacer(1)
	require.NoError(t, p.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.wait(ctx))

	assert.NoError(t, newPacer(0).wait(context.Background()))
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "curto", truncate("curto", 10))
	// "ã" is two bytes; a cut through it backs off to the previous rune
	assert.Equal(t, "n", truncate("não", 2))
	assert.Equal(t, "nã", truncate("não", 3))
	assert.Equal(t, "", truncate("ção", 1))
}

func TestErrorMessageStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("a", 499) + "ção excedida"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	for _, newClient := range []func(Config) (Client, error){
		func(c Config) (Client, error) { return NewAnthropic(c) },
		func(c Config) (Client, error) { return NewOpenAI(c) },
	} {
		client, err := newClient(Config{APIKey: "k", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), Request{Prompt: "oi"})
		var llmErr *Error
		require.ErrorAs(t, err, &llmErr)
		assert.True(t, utf8.ValidString(llmErr.Message), client.Name())
		assert.LessOrEqual(t, len(llmErr.Message), 500)
	}
}
