package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{})
	assert.Error(t, err)

	client, err := NewOpenAIClient(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, ErrPermanent},
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, ErrPermanent},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, ErrTransient},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, ErrTransient},
		{"plain error", errors.New("connection reset"), ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyError(tt.err), tt.want)
		})
	}
}

func TestCompleteAgainstFakeEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "- Voyager 1 launched in 1977. [AFFIRM]"}}]
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{
		APIKey:      "sk-test",
		Model:       "gpt-4o-mini",
		BaseURL:     server.URL + "/v1",
		CallTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "- Voyager 1 launched in 1977. [AFFIRM]", out)
}

func TestCompleteEmptyChoicesIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		BaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "system", "user")
	assert.ErrorIs(t, err, ErrTransient)
}

func TestCompleteServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "system", "user")
	assert.ErrorIs(t, err, ErrTransient)
}
