package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GoogleClient queries the Google Custom Search JSON API.
type GoogleClient struct {
	apiKey   string
	engineID string
	endpoint string
	client   *http.Client
}

// NewGoogleClient creates a search client. endpoint defaults to the
// public Custom Search API when empty.
func NewGoogleClient(apiKey, engineID, endpoint string) *GoogleClient {
	if endpoint == "" {
		endpoint = "https://www.googleapis.com/customsearch/v1"
	}
	return &GoogleClient{
		apiKey:   apiKey,
		engineID: engineID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type googleResponse struct {
	Items []struct {
		Link  string `json:"link"`
		Title string `json:"title"`
	} `json:"items"`
}

// Search issues one API call and returns hits in rank order.
func (g *GoogleClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 1 {
		limit = 1
	}
	// The Custom Search API caps num at 10 per call.
	if limit > 10 {
		limit = 10
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: provider returned %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: provider returned %d", ErrPermanent, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{URL: item.Link, Title: item.Title})
	}
	return results, nil
}
