// Package search provides the web search capability and its
// process-wide rate limit.
package search

import (
	"context"
	"errors"
)

// Result is one search hit, in provider rank order.
type Result struct {
	URL   string
	Title string
}

// Provider is the web search capability. Implementations must be safe
// for concurrent use; the rate limit is enforced by the caller-facing
// RateLimitedProvider wrapper, not by each implementation.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Classified error kinds for provider failures. Transient errors are
// retried within the attempt budget; permanent errors fail the
// session immediately.
var (
	// ErrTransient marks retriable provider failures (HTTP 5xx,
	// timeouts, rate-limit rejections).
	ErrTransient = errors.New("transient search error")

	// ErrPermanent marks non-retriable failures (HTTP 4xx, bad
	// credentials).
	ErrPermanent = errors.New("permanent search error")
)
