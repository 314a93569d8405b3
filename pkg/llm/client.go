// Package llm provides the completion capability used for claim
// extraction, question reframing, and answer synthesis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the completion capability. Implementations must use
// deterministic sampling so identical prompts yield stable output.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Error kinds mirroring the search provider classification.
var (
	// ErrTransient marks retriable failures (5xx, timeouts).
	ErrTransient = errors.New("transient llm error")

	// ErrPermanent marks non-retriable failures (4xx, bad credentials).
	ErrPermanent = errors.New("permanent llm error")
)

// OpenAIClient calls an OpenAI-compatible chat completion API with
// temperature 0 and a fixed seed for reproducible extraction.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	callTimeout time.Duration
}

// Config for NewOpenAIClient.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// CallTimeout bounds each completion call. Defaults to 30s.
	CallTimeout time.Duration
}

// NewOpenAIClient creates the production completion client.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: LLM_API_KEY is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("LLM_MODEL not set, using default", "model", model)
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		callTimeout: timeout,
	}, nil
}

// completionSeed pins sampling for reproducibility across calls.
const completionSeed = 42

// Complete issues one chat completion with deterministic settings.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	seed := completionSeed
	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Seed:        &seed,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", ErrTransient)
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyError maps API failures onto the transient/permanent split.
// Timeouts and 5xx are transient and count against the attempt
// budget; 4xx ends the session.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
