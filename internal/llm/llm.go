// Package llm provides a minimal completion client for hosted language models.
//
// Providers report failures as *Error values carrying a Kind, so callers
// decide on fallback or retry by kind instead of by message text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Request is a single-turn completion request
type Request struct {
	Model     string // Optional: override the client default
	System    string
	Prompt    string
	MaxTokens int
}

// Client completes prompts against a language model
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Kind classifies a provider failure
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindQuotaExceeded
	KindMalformed
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindMalformed:
		return "malformed"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Classify maps an HTTP status and response body to a failure kind
func Classify(status int, body string) Kind {
	lower := strings.ToLower(body)
	quota := strings.Contains(lower, "credit") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "billing") ||
		strings.Contains(lower, "insufficient_balance")

	switch {
	case status == 402:
		return KindQuotaExceeded
	case status == 429 && quota:
		return KindQuotaExceeded
	case status == 429:
		return KindRateLimited
	case status == 400 && quota:
		return KindQuotaExceeded
	case status == 529 || status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsQuotaOrRateLimit reports whether err is a capacity failure that callers
// are expected to degrade around
func IsQuotaOrRateLimit(err error) bool {
	k := KindOf(err)
	return k == KindRateLimited || k == KindQuotaExceeded
}

// truncate returns at most n bytes of s, cut back to a rune boundary so
// error bodies stay valid UTF-8
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
