package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/editalindex/internal/classifier"
	"github.com/dshills/editalindex/internal/crawler"
	"github.com/dshills/editalindex/internal/embedder"
	"github.com/dshills/editalindex/internal/extractor"
	"github.com/dshills/editalindex/internal/normalizer"
	"github.com/dshills/editalindex/internal/storage"
	"github.com/dshills/editalindex/pkg/types"
)

// Limits applied to each indexed document
const (
	MaxBodyChars      = 6000
	MaxEmbeddingChars = 8000
)

// ErrIndexingInProgress is returned when a run is already active
var ErrIndexingInProgress = errors.New("indexing already in progress")

// SkipReason explains why a document was not indexed
type SkipReason string

const (
	SkipUnclassified   SkipReason = "unclassified"
	SkipFiltered       SkipReason = "filtered"
	SkipAlreadyIndexed SkipReason = "already_indexed"
	SkipNoText         SkipReason = "no_text"
)

// Outcome is the result of processing one document
type Outcome int

const (
	OutcomeIndexed Outcome = iota
	OutcomeSkipped
	OutcomeError
)

// Event reports the outcome of one document to a progress callback
type Event struct {
	Path    string
	Outcome Outcome
	Reason  SkipReason // Set when Outcome is OutcomeSkipped
	Err     error      // Set when Outcome is OutcomeError
}

// Deps are the collaborators of an Indexer
type Deps struct {
	Store      storage.Storage
	Extractor  extractor.Extractor
	Normalizer *normalizer.Normalizer
	Classifier *classifier.PathClassifier
	Embedder   embedder.Embedder
	Logger     *slog.Logger
}

// Options configures one indexing run
type Options struct {
	Roots            []string
	DryRun           bool   // Classify, extract and normalise, but write nothing and skip embeddings
	DisciplineFilter string // Case-insensitive substring of the discipline display name
	MaxFiles         int    // Stop after this many documents across all roots (0 = unlimited)
	Workers          int    // Concurrent documents (default 1)
	Progress         func(Event)
}

// Stats summarises an indexing run
type Stats struct {
	Total         int
	Indexed       int
	Skipped       int
	Errors        int
	Skips         map[SkipReason]int
	ErrorMessages []string
	Duration      time.Duration
}

func (s *Stats) record(ev Event) {
	s.Total++
	switch ev.Outcome {
	case OutcomeIndexed:
		s.Indexed++
	case OutcomeSkipped:
		s.Skipped++
		s.Skips[ev.Reason]++
	case OutcomeError:
		s.Errors++
		s.ErrorMessages = append(s.ErrorMessages, fmt.Sprintf("%s: %v", ev.Path, ev.Err))
	}
}

// Indexer coordinates the indexing pipeline:
// crawl -> classify -> extract -> normalise -> embed -> store
type Indexer struct {
	deps   Deps
	logger *slog.Logger
	lock   IndexLock

	// slug -> discipline ID, shared across runs
	disciplines sync.Map
}

// New creates a new Indexer instance
func New(deps Deps) *Indexer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.NewPDF()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalizer.New(normalizer.Options{Logger: logger})
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.NewPathClassifier(classifier.DefaultTable())
	}
	return &Indexer{deps: deps, logger: logger}
}

// Run indexes every document under opts.Roots. Per-document failures are
// counted and logged; only lock contention, cancellation and missing
// collaborators abort the run.
func (idx *Indexer) Run(ctx context.Context, opts Options) (*Stats, error) {
	if idx.deps.Store == nil {
		return nil, fmt.Errorf("indexer: store is required")
	}
	if idx.deps.Embedder == nil && !opts.DryRun {
		return nil, fmt.Errorf("indexer: embedder is required unless dry-run")
	}
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	start := time.Now()
	stats := &Stats{Skips: make(map[SkipReason]int), ErrorMessages: make([]string, 0)}
	var mu sync.Mutex // Protects stats and serialises progress callbacks

	report := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		stats.record(ev)
		if opts.Progress != nil {
			opts.Progress(ev)
		}
	}

	walker := crawler.New(crawler.Options{MaxFiles: opts.MaxFiles, Logger: idx.logger})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for path := range walker.Walk(gctx, opts.Roots...) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ev := idx.indexFile(gctx, path, opts)
			if ev.Outcome == OutcomeError {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				idx.logger.Error("failed to index document", "path", path, "error", ev.Err)
			}
			report(ev)
			return nil
		})
	}
	err := g.Wait()

	stats.Duration = time.Since(start)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return stats, err
	}

	idx.logger.Info("indexing finished",
		"total", stats.Total, "indexed", stats.Indexed, "skipped", stats.Skipped,
		"errors", stats.Errors, "duration", stats.Duration)
	return stats, nil
}

// indexFile runs the pipeline for one document and reports its outcome
func (idx *Indexer) indexFile(ctx context.Context, path string, opts Options) Event {
	skip := func(reason SkipReason) Event {
		idx.logger.Debug("skipped document", "path", path, "reason", string(reason))
		return Event{Path: path, Outcome: OutcomeSkipped, Reason: reason}
	}
	fail := func(err error) Event {
		return Event{Path: path, Outcome: OutcomeError, Err: err}
	}

	match, ok := idx.deps.Classifier.Classify(path)
	if !ok {
		return skip(SkipUnclassified)
	}
	if opts.DisciplineFilter != "" &&
		!strings.Contains(strings.ToUpper(match.Name), strings.ToUpper(opts.DisciplineFilter)) {
		return skip(SkipFiltered)
	}

	// The path as crawled is the idempotency key
	exists, err := idx.deps.Store.ContentExists(ctx, path)
	if err != nil {
		return fail(err)
	}
	if exists {
		return skip(SkipAlreadyIndexed)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("read: %w", err))
	}
	extracted, err := idx.deps.Extractor.Extract(content)
	if err != nil {
		return fail(fmt.Errorf("extract: %w", err))
	}
	if !extracted.Usable {
		return skip(SkipNoText)
	}

	normalized, err := idx.deps.Normalizer.Normalize(ctx, extracted.Text)
	if err != nil {
		return fail(fmt.Errorf("normalize: %w", err))
	}
	if normalized.Skipped {
		return skip(SkipNoText)
	}

	if opts.DryRun {
		return Event{Path: path, Outcome: OutcomeIndexed}
	}

	disciplineID, err := idx.ensureDiscipline(ctx, match)
	if err != nil {
		return fail(err)
	}

	emb, err := idx.deps.Embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
		Text: normalizer.Truncate(normalized.Text, MaxEmbeddingChars),
	})
	if err != nil {
		return fail(fmt.Errorf("embed: %w", err))
	}

	created, err := idx.deps.Store.InsertContent(ctx, &types.IndexedContent{
		DisciplineID: &disciplineID,
		Kind:         types.KindSummary,
		Title:        Title(path),
		Body:         normalizer.Truncate(normalized.Text, MaxBodyChars),
		SourceKey:    path,
		Embedding:    emb.Vector,
	})
	if err != nil {
		return fail(fmt.Errorf("store: %w", err))
	}
	if !created {
		// Lost the race with a concurrent run
		return skip(SkipAlreadyIndexed)
	}

	idx.logger.Debug("indexed document", "path", path, "discipline", match.Slug, "ai", normalized.UsedAI)
	return Event{Path: path, Outcome: OutcomeIndexed}
}

// ensureDiscipline returns the stored ID for the match, creating the
// discipline on first encounter
func (idx *Indexer) ensureDiscipline(ctx context.Context, match classifier.Match) (string, error) {
	if id, ok := idx.disciplines.Load(match.Slug); ok {
		return id.(string), nil
	}
	d := match.Discipline()
	if err := idx.deps.Store.UpsertDiscipline(ctx, d); err != nil {
		return "", fmt.Errorf("discipline %s: %w", match.Slug, err)
	}
	idx.disciplines.Store(match.Slug, d.ID)
	return d.ID, nil
}

// Title is the document file name without its extension
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Running reports whether an index or re-clean pass holds the lock
func (idx *Indexer) Running() bool {
	return idx.lock.Held()
}
