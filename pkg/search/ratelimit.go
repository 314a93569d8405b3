package search

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a Provider with a process-wide token
// bucket shared by all sessions. Callers queue up to maxWait for a
// token; past that the call fails as transient and the attempt is
// charged against the session's search budget.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	maxWait time.Duration
}

// NewRateLimitedProvider wraps inner with a token bucket of the given
// sustained rate and burst.
func NewRateLimitedProvider(inner Provider, perSecond float64, burst int, maxWait time.Duration) *RateLimitedProvider {
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		maxWait: maxWait,
	}
}

// Search acquires a token then delegates to the wrapped provider.
func (r *RateLimitedProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()

	if err := r.limiter.Wait(waitCtx); err != nil {
		return nil, fmt.Errorf("%w: search rate limit: %v", ErrTransient, err)
	}
	return r.inner.Search(ctx, query, limit)
}
