package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/editalindex/internal/extractor"
	"github.com/dshills/editalindex/internal/llm"
	"github.com/dshills/editalindex/internal/normalizer"
)

// DefaultRecleanBatch is the page size used when walking stored contents
const DefaultRecleanBatch = 50

// ErrCapacityExhausted is returned when the repair model runs out of credit
// or is rate limited part way through a re-clean pass
var ErrCapacityExhausted = errors.New("repair model capacity exhausted")

// RecleanOptions configures a re-clean pass
type RecleanOptions struct {
	BatchSize int  // Contents fetched per page (default 50)
	Limit     int  // Stop after checking this many records (0 = all)
	DryRun    bool // Count dirty records without rewriting them
	Progress  func(id string, cleaned bool, err error)
}

// RecleanStats summarises a re-clean pass
type RecleanStats struct {
	Checked  int
	Dirty    int
	Cleaned  int
	Errors   int
	StopID   string // Record being processed when capacity ran out
	Duration time.Duration
}

// Reclean rewrites stored bodies that still look like raw PDF output.
// With a repair model configured the model rewrites the body; otherwise the
// rule pass is applied again. Failures on single records are counted and the
// pass continues, except for capacity errors which stop it with
// ErrCapacityExhausted alongside the partial stats.
func (idx *Indexer) Reclean(ctx context.Context, opts RecleanOptions) (*RecleanStats, error) {
	if idx.deps.Store == nil {
		return nil, fmt.Errorf("indexer: store is required")
	}
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultRecleanBatch
	}

	start := time.Now()
	stats := &RecleanStats{}
	norm := idx.deps.Normalizer
	after := ""

pages:
	for {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		page, err := idx.deps.Store.ListContents(ctx, after, batch)
		if err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("list contents: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, c := range page {
			after = c.ID
			if opts.Limit > 0 && stats.Checked >= opts.Limit {
				break pages
			}
			if c.Body == "" {
				continue
			}
			stats.Checked++
			if !normalizer.IsDirty(c.Body) {
				continue
			}
			stats.Dirty++
			if opts.DryRun {
				continue
			}

			cleaned, err := idx.recleanBody(ctx, norm, c.Body)
			if err == nil && cleaned != c.Body {
				err = idx.deps.Store.UpdateContentBody(ctx, c.ID, cleaned)
				if err == nil {
					stats.Cleaned++
				}
			}
			if opts.Progress != nil {
				opts.Progress(c.ID, err == nil && cleaned != c.Body, err)
			}
			if err == nil {
				continue
			}

			stats.Errors++
			if llm.IsQuotaOrRateLimit(err) {
				stats.StopID = c.ID
				stats.Duration = time.Since(start)
				idx.logger.Warn("repair model out of capacity, stopping", "content", c.ID,
					"checked", stats.Checked, "cleaned", stats.Cleaned)
				return stats, fmt.Errorf("%w: %v", ErrCapacityExhausted, err)
			}
			idx.logger.Error("failed to reclean content", "content", c.ID, "error", err)
		}
	}

	stats.Duration = time.Since(start)
	idx.logger.Info("reclean finished", "checked", stats.Checked, "dirty", stats.Dirty,
		"cleaned", stats.Cleaned, "errors", stats.Errors, "duration", stats.Duration)
	return stats, nil
}

// recleanBody returns the replacement body, or the original when nothing
// usable came back
func (idx *Indexer) recleanBody(ctx context.Context, norm *normalizer.Normalizer, body string) (string, error) {
	var out string
	if norm.AIEnabled() {
		repaired, err := norm.Repair(ctx, body)
		if err != nil {
			return "", err
		}
		out = repaired
	} else {
		out = normalizer.Clean(body)
	}
	out = normalizer.Truncate(out, MaxBodyChars)
	if !extractor.Usable(out, extractor.MinTextLength) {
		return body, nil
	}
	return out, nil
}
