package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// pacer throttles outgoing requests to stay under a provider's rate limit
type pacer struct {
	limiter *rate.Limiter
}

// newPacer returns a pacer allowing perMinute requests; zero disables pacing
func newPacer(perMinute int) *pacer {
	if perMinute <= 0 {
		return &pacer{}
	}
	return &pacer{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)}
}

func (p *pacer) wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
