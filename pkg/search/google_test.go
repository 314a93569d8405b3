package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func googleServer(t *testing.T, status int, body string, capture *map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			params := make(map[string]string)
			for k := range r.URL.Query() {
				params[k] = r.URL.Query().Get(k)
			}
			*capture = params
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGoogleSearchParsesItems(t *testing.T) {
	var params map[string]string
	server := googleServer(t, http.StatusOK, `{
		"items": [
			{"link": "https://en.wikipedia.org/wiki/Voyager_1", "title": "Voyager 1"},
			{"link": "https://www.nasa.gov/voyager", "title": "Voyager - NASA"},
			{"link": "", "title": "no link, skipped"}
		]
	}`, &params)

	client := NewGoogleClient("key-123", "cx-456", server.URL)
	results, err := client.Search(context.Background(), "voyager 1 launch", 5)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Voyager_1", results[0].URL)
	assert.Equal(t, "Voyager 1", results[0].Title)
	assert.Equal(t, "https://www.nasa.gov/voyager", results[1].URL)

	assert.Equal(t, "key-123", params["key"])
	assert.Equal(t, "cx-456", params["cx"])
	assert.Equal(t, "voyager 1 launch", params["q"])
	assert.Equal(t, "5", params["num"])
}

func TestGoogleSearchCapsLimitAtTen(t *testing.T) {
	var params map[string]string
	server := googleServer(t, http.StatusOK, `{"items": []}`, &params)

	client := NewGoogleClient("k", "cx", server.URL)
	results, err := client.Search(context.Background(), "q", 15)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, "10", params["num"])

	_, err = client.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, "1", params["num"])
}

func TestGoogleSearchServerErrorIsTransient(t *testing.T) {
	server := googleServer(t, http.StatusBadGateway, "", nil)
	client := NewGoogleClient("k", "cx", server.URL)

	_, err := client.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestGoogleSearchClientErrorIsPermanent(t *testing.T) {
	server := googleServer(t, http.StatusForbidden, "", nil)
	client := NewGoogleClient("k", "cx", server.URL)

	_, err := client.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestGoogleSearchMalformedBodyIsTransient(t *testing.T) {
	server := googleServer(t, http.StatusOK, `not json`, nil)
	client := NewGoogleClient("k", "cx", server.URL)

	_, err := client.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestGoogleSearchNoItemsField(t *testing.T) {
	server := googleServer(t, http.StatusOK, `{}`, nil)
	client := NewGoogleClient("k", "cx", server.URL)

	results, err := client.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
