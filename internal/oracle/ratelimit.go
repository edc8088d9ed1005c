package oracle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps an Oracle with a token-bucket limiter shared by every
// session that uses it.
type RateLimited struct {
	next    Oracle
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond calls per second with the given burst.
// A non-positive perSecond disables limiting.
func NewRateLimited(next Oracle, perSecond float64, burst int) Oracle {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Complete implements Oracle.
func (r *RateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("oracle rate limit: %w", err)
	}
	return r.next.Complete(ctx, req)
}
