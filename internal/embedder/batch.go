package embedder

import (
	"context"
	"fmt"
	"time"
)

// DefaultBatchDelay is the pause between consecutive chunk requests
const DefaultBatchDelay = 100 * time.Millisecond

// BatchOptions controls how EmbedBatch partitions its input
type BatchOptions struct {
	Size  int           // Texts per request (default DefaultBatchSize)
	Delay time.Duration // Pause between requests (default DefaultBatchDelay; negative disables)
}

// EmbedBatch embeds texts in fixed-size chunks, one request per chunk, with a
// fixed delay between requests. Output order matches input order. A failure
// on any chunk fails the whole call.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, opts BatchOptions) ([]*Embedding, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultBatchSize
	}
	if size > MaxBatchSize {
		size = MaxBatchSize
	}
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultBatchDelay
	}

	out := make([]*Embedding, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if start > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		end := min(start+size, len(texts))
		resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts[start:end]})
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d-%d: %w", start, end, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: chunk %d-%d returned %d embeddings", ErrProviderFailed, start, end, len(resp.Embeddings))
		}
		out = append(out, resp.Embeddings...)
	}
	return out, nil
}
