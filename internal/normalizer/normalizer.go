// Package normalizer repairs text extracted from study PDFs.
//
// A deterministic rule pass always runs. An optional language-model pass
// rewrites text the rules could not fully clean; when the model is out of
// capacity the rule output is used instead.
package normalizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/editalindex/internal/extractor"
	"github.com/dshills/editalindex/internal/llm"
)

const (
	DefaultMaxChars     = 6000
	DefaultMinLength    = extractor.MinTextLength
	DefaultAIInputChars = 15000
	DefaultAIMaxTokens  = 8096
)

// Options configures a Normalizer
type Options struct {
	MaxChars  int // Output cap in characters
	MinLength int // Output below this is reported as skipped

	AI           llm.Client // Optional repair model
	AIModel      string
	AIInputChars int // Prefix of the raw text sent to the model
	AIMaxTokens  int
	AlwaysUseAI  bool // Otherwise the model only sees text that still looks dirty

	Logger *slog.Logger
}

// Result is the outcome of normalisation
type Result struct {
	Text     string
	Skipped  bool // Below the minimum length; must not be embedded or stored
	UsedAI   bool
	FellBack bool // The model was out of capacity and rule output was used
}

// Normalizer turns raw extracted text into clean body text
type Normalizer struct {
	opts   Options
	logger *slog.Logger
}

// New creates a normalizer, filling unset options with defaults
func New(opts Options) *Normalizer {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	if opts.AIInputChars <= 0 {
		opts.AIInputChars = DefaultAIInputChars
	}
	if opts.AIMaxTokens <= 0 {
		opts.AIMaxTokens = DefaultAIMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{opts: opts, logger: logger}
}

// AIEnabled reports whether a repair model is configured
func (n *Normalizer) AIEnabled() bool {
	return n.opts.AI != nil
}

// Normalize cleans raw text. Only non-capacity model failures are returned as
// errors; everything else degrades to the rule-based output.
func (n *Normalizer) Normalize(ctx context.Context, raw string) (Result, error) {
	text := Clean(raw)
	res := Result{}

	if n.opts.AI != nil && (n.opts.AlwaysUseAI || IsDirty(text)) {
		repaired, err := n.Repair(ctx, raw)
		switch {
		case err == nil && extractor.Usable(repaired, n.opts.MinLength):
			text = repaired
			res.UsedAI = true
		case err == nil:
			n.logger.Debug("model output too short, keeping rule output", "length", len(repaired))
		case llm.IsQuotaOrRateLimit(err):
			n.logger.Warn("repair model unavailable, using rule output", "kind", llm.KindOf(err).String())
			res.FellBack = true
		default:
			return Result{}, fmt.Errorf("repair text: %w", err)
		}
	}

	res.Text = strings.TrimSpace(Truncate(text, n.opts.MaxChars))
	res.Skipped = !extractor.Usable(res.Text, n.opts.MinLength)
	return res, nil
}

// Repair sends a bounded prefix of text to the model and returns its
// rewrite. Errors are returned unchanged so callers can inspect llm kinds.
func (n *Normalizer) Repair(ctx context.Context, text string) (string, error) {
	if n.opts.AI == nil {
		return "", fmt.Errorf("repair text: no model configured")
	}
	out, err := n.opts.AI.Complete(ctx, llm.Request{
		Model:     n.opts.AIModel,
		System:    repairSystemPrompt,
		Prompt:    repairPrompt(Truncate(text, n.opts.AIInputChars)),
		MaxTokens: n.opts.AIMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

const repairSystemPrompt = `You organise study material for Brazilian public service exams.
You return only cleaned educational text, in the original language, with no commentary.`

func repairPrompt(text string) string {
	return `Clean the text below, extracted from a PDF, and return ONLY the educational content.

REMOVE COMPLETELY:
- Tables of contents and indexes (lines with "....", "......1", "......25")
- Any publisher or course-platform marks and URLs
- Copyright, licence and reproduction notices, including "O conteúdo deste livro é licenciado para ..."
- Footers such as "X de Y", "2 de 77", "www.", isolated page numbers
- Author biographies (doutor, mestre, lattes.cnpq)
- Course presentation pages and repeated chapter headers

FIX:
- Words split into letters or with mixed case: "DiReiTO" -> "Direito", "Direi To Tribu Tário" -> "Direito Tributário"
- Glued words: "vocêJáouviu" -> "você já ouviu"

KEEP:
- All legal, technical and educational content, statutes, definitions and examples
- Topic structure and lists

Do not summarise. Do not add text. Do not explain.

TEXT:
` + text
}
