// Package webenv turns a search query into a bounded set of cleaned
// documents: search, blocklist filtering, parallel fetch, and
// main-text extraction.
package webenv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veriweb/veriweb/pkg/version"
)

// maxBodyBytes bounds how much of a page body is read.
const maxBodyBytes = 2 << 20

// Fetcher is the raw page fetch capability. Tests substitute an
// in-memory fake.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over HTTP with a per-request timeout.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with the given per-URL timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves a page body. Non-2xx statuses are errors; the
// caller logs and skips failed URLs.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("webenv: build request: %w", err)
	}
	req.Header.Set("User-Agent", version.Full())

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webenv: fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webenv: fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("webenv: read %s: %w", url, err)
	}
	return string(body), nil
}
