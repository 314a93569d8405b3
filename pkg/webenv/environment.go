package webenv

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/search"
)

// MinTextLength is the minimum extracted text length for a document
// to be considered usable.
const MinTextLength = 200

// maxTextLength bounds stored document text.
const maxTextLength = 20000

// Environment runs one search-and-fetch pass: search, filter, fetch
// in parallel, extract, and return at most numDocs documents in
// search rank order.
type Environment struct {
	provider    search.Provider
	fetcher     Fetcher
	fetchBudget time.Duration
}

// Options tunes the environment. Zero values take defaults.
type Options struct {
	// FetchBudget is the total wall-clock budget for the fetch fan-out.
	FetchBudget time.Duration
}

// New creates an Environment over a search provider and fetcher.
func New(provider search.Provider, fetcher Fetcher, opts Options) *Environment {
	budget := opts.FetchBudget
	if budget <= 0 {
		budget = 20 * time.Second
	}
	return &Environment{
		provider:    provider,
		fetcher:     fetcher,
		fetchBudget: budget,
	}
}

// RunResult is the outcome of one environment pass.
type RunResult struct {
	Documents []models.Document
	// Success is false when the search provider itself failed; the
	// planner treats that as a retry candidate rather than an error.
	Success bool
	// Err holds the provider failure when Success is false.
	Err error
}

// Run executes the pass. Individual fetch failures are logged and
// skipped; only a provider failure marks the result unsuccessful.
func (e *Environment) Run(ctx context.Context, query string, numDocs int) RunResult {
	results, err := e.provider.Search(ctx, query, numDocs)
	if err != nil {
		slog.Warn("Search provider failed", "query", query, "error", err)
		return RunResult{Success: false, Err: err}
	}

	// Filter before fetching: blocklisted domains, bad schemes,
	// duplicate URLs.
	seen := make(map[string]bool)
	candidates := make([]search.Result, 0, len(results))
	for _, r := range results {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		if !UsableURL(r.URL) {
			slog.Debug("Skipping blocked or unusable URL", "url", r.URL)
			continue
		}
		candidates = append(candidates, r)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchBudget)
	defer cancel()

	// Fetch in parallel, keeping rank order by writing into a
	// rank-indexed slice.
	docs := make([]*models.Document, len(candidates))
	g, gctx := errgroup.WithContext(fetchCtx)
	for i, cand := range candidates {
		g.Go(func() error {
			body, err := e.fetcher.Fetch(gctx, cand.URL)
			if err != nil {
				slog.Debug("Fetch failed, skipping document", "url", cand.URL, "error", err)
				return nil
			}
			title, text := ExtractText(body)
			if len(text) < MinTextLength {
				slog.Debug("Extracted text too short, skipping", "url", cand.URL, "length", len(text))
				return nil
			}
			if len(text) > maxTextLength {
				text = text[:maxTextLength]
			}
			if title == "" {
				title = cand.Title
			}
			docs[i] = &models.Document{
				URL:       cand.URL,
				Domain:    Domain(cand.URL),
				Title:     title,
				Text:      text,
				FetchedAt: time.Now().UTC(),
			}
			return nil
		})
	}
	// Workers only return nil; the group exists for fan-out and
	// context propagation.
	_ = g.Wait()

	out := make([]models.Document, 0, len(candidates))
	for _, d := range docs {
		if d == nil {
			continue
		}
		out = append(out, *d)
		if len(out) >= numDocs {
			break
		}
	}

	slog.Info("Web environment pass complete",
		"query", query,
		"candidates", len(candidates),
		"documents", len(out))
	return RunResult{Documents: out, Success: true}
}
