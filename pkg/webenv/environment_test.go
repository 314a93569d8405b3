package webenv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriweb/veriweb/pkg/search"
)

type fakeProvider struct {
	results []search.Result
	err     error
	calls   int
}

func (f *fakeProvider) Search(_ context.Context, _ string, _ int) ([]search.Result, error) {
	f.calls++
	return f.results, f.err
}

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	page, ok := f.pages[url]
	if !ok {
		return "", errors.New("fetch failed")
	}
	return page, nil
}

func page(body string) string {
	return fmt.Sprintf("<html><head><title>Test</title></head><body><p>%s</p></body></html>", body)
}

var longBody = strings.Repeat("Voyager 1 was launched in 1977 by NASA. ", 10)

func TestRunFetchesAndExtractsInRankOrder(t *testing.T) {
	provider := &fakeProvider{results: []search.Result{
		{URL: "https://a.com/1", Title: "A"},
		{URL: "https://b.com/1", Title: "B"},
		{URL: "https://c.com/1", Title: "C"},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.com/1": page(longBody + " first"),
		"https://b.com/1": page(longBody + " second"),
		"https://c.com/1": page(longBody + " third"),
	}}

	env := New(provider, fetcher, Options{})
	result := env.Run(context.Background(), "voyager", 3)

	require.True(t, result.Success)
	require.Len(t, result.Documents, 3)
	assert.Equal(t, "https://a.com/1", result.Documents[0].URL)
	assert.Equal(t, "https://b.com/1", result.Documents[1].URL)
	assert.Equal(t, "https://c.com/1", result.Documents[2].URL)
	assert.Equal(t, "a.com", result.Documents[0].Domain)
	assert.Contains(t, result.Documents[0].Text, "Voyager 1")
}

func TestRunSkipsBlockedAndDuplicateURLs(t *testing.T) {
	provider := &fakeProvider{results: []search.Result{
		{URL: "https://facebook.com/post"},
		{URL: "ftp://a.com/file"},
		{URL: "https://a.com/1"},
		{URL: "https://a.com/1"},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.com/1": page(longBody),
	}}

	env := New(provider, fetcher, Options{})
	result := env.Run(context.Background(), "q", 5)

	require.True(t, result.Success)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "https://a.com/1", result.Documents[0].URL)
}

func TestRunSkipsFailedFetchesAndShortDocuments(t *testing.T) {
	provider := &fakeProvider{results: []search.Result{
		{URL: "https://a.com/broken"},
		{URL: "https://b.com/short"},
		{URL: "https://c.com/good"},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://b.com/short": page("tiny"),
		"https://c.com/good":  page(longBody),
	}}

	env := New(provider, fetcher, Options{})
	result := env.Run(context.Background(), "q", 5)

	require.True(t, result.Success)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "https://c.com/good", result.Documents[0].URL)
}

func TestRunTrimsToRequestedCount(t *testing.T) {
	provider := &fakeProvider{results: []search.Result{
		{URL: "https://a.com/1"},
		{URL: "https://b.com/1"},
		{URL: "https://c.com/1"},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.com/1": page(longBody),
		"https://b.com/1": page(longBody),
		"https://c.com/1": page(longBody),
	}}

	env := New(provider, fetcher, Options{})
	result := env.Run(context.Background(), "q", 2)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, "https://a.com/1", result.Documents[0].URL)
	assert.Equal(t, "https://b.com/1", result.Documents[1].URL)
}

func TestRunProviderFailureIsNotFatal(t *testing.T) {
	provider := &fakeProvider{err: search.ErrTransient}

	env := New(provider, &fakeFetcher{}, Options{})
	result := env.Run(context.Background(), "q", 5)

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, search.ErrTransient)
	assert.Empty(t, result.Documents)
}
