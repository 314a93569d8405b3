// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Budgets controls how much work the planner may spend on one session.
type Budgets struct {
	// MaxAttempts is the hard cap on RESEARCH↔VERIFY loops per session.
	MaxAttempts int

	// MaxSearches caps total SearchProvider calls across a session,
	// including failed searches.
	MaxSearches int

	// BaseDocs and DocsStep define the per-attempt document schedule:
	// attempt n requests BaseDocs + (n-1)*DocsStep documents, capped
	// at MaxDocs.
	BaseDocs int
	DocsStep int
	MaxDocs  int

	// SessionTimeout is the total wall-clock budget for one session.
	SessionTimeout time.Duration

	// LLMCallTimeout bounds each individual completion call.
	LLMCallTimeout time.Duration

	// CacheTTL is how long an accepted answer stays reusable.
	CacheTTL time.Duration
}

// DocsForAttempt returns the document budget for a 1-based attempt.
func (b Budgets) DocsForAttempt(attempt int) int {
	if attempt < 1 {
		attempt = 1
	}
	n := b.BaseDocs + (attempt-1)*b.DocsStep
	if n > b.MaxDocs {
		n = b.MaxDocs
	}
	return n
}

// QueueConfig controls the worker pool that drives sessions.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica.
	WorkerCount int

	// PollInterval is the base interval for checking queued sessions.
	PollInterval time.Duration

	// PollIntervalJitter is random jitter added to PollInterval.
	PollIntervalJitter time.Duration

	// HeartbeatInterval is how often a worker refreshes the session
	// heartbeat while processing.
	HeartbeatInterval time.Duration

	// GracefulShutdownTimeout bounds the wait for in-flight sessions
	// on shutdown.
	GracefulShutdownTimeout time.Duration
}

// SearchConfig configures the web search provider.
type SearchConfig struct {
	APIKey   string
	EngineID string
	Endpoint string

	// RatePerSecond and Burst parameterize the process-wide token
	// bucket shared by all sessions. RateWait is how long an attempt
	// may queue for a token before failing.
	RatePerSecond float64
	Burst         int
	RateWait      time.Duration
}

// LLMConfig configures the completion client.
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Config is the root service configuration.
type Config struct {
	DatabaseURL        string
	HTTPPort           string
	InternalTraceToken string

	Budgets Budgets
	Queue   QueueConfig
	Search  SearchConfig
	LLM     LLMConfig
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPPort: "8080",
		Budgets: Budgets{
			MaxAttempts:    3,
			MaxSearches:    4,
			BaseDocs:       5,
			DocsStep:       3,
			MaxDocs:        15,
			SessionTimeout: 90 * time.Second,
			LLMCallTimeout: 30 * time.Second,
			CacheTTL:       24 * time.Hour,
		},
		Queue: QueueConfig{
			WorkerCount:             4,
			PollInterval:            1 * time.Second,
			PollIntervalJitter:      500 * time.Millisecond,
			HeartbeatInterval:       10 * time.Second,
			GracefulShutdownTimeout: 2 * time.Minute,
		},
		Search: SearchConfig{
			Endpoint:      "https://www.googleapis.com/customsearch/v1",
			RatePerSecond: 10,
			Burst:         10,
			RateWait:      2 * time.Second,
		},
	}
}

// Load builds the configuration from environment variables, applying
// defaults for anything unset. It fails on unparsable values rather
// than silently falling back.
func Load() (*Config, error) {
	cfg := Defaults()

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.InternalTraceToken = os.Getenv("INTERNAL_TRACE_TOKEN")

	cfg.Search.APIKey = os.Getenv("SEARCH_API_KEY")
	cfg.Search.EngineID = os.Getenv("SEARCH_ENGINE_ID")
	cfg.Search.Endpoint = getEnv("SEARCH_ENDPOINT", cfg.Search.Endpoint)

	cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	cfg.LLM.Model = getEnv("LLM_MODEL", "gpt-4o-mini")
	cfg.LLM.BaseURL = os.Getenv("LLM_BASE_URL")

	var err error
	if cfg.Budgets.MaxAttempts, err = getEnvInt("MAX_ATTEMPTS", cfg.Budgets.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Budgets.MaxSearches, err = getEnvInt("MAX_SEARCHES", cfg.Budgets.MaxSearches); err != nil {
		return nil, err
	}
	if cfg.Budgets.BaseDocs, err = getEnvInt("BASE_DOCS", cfg.Budgets.BaseDocs); err != nil {
		return nil, err
	}
	if cfg.Budgets.DocsStep, err = getEnvInt("DOCS_STEP", cfg.Budgets.DocsStep); err != nil {
		return nil, err
	}
	if cfg.Budgets.SessionTimeout, err = getEnvSeconds("SESSION_TIMEOUT_SECONDS", cfg.Budgets.SessionTimeout); err != nil {
		return nil, err
	}
	if cfg.Budgets.CacheTTL, err = getEnvSeconds("CACHE_TTL_SECONDS", cfg.Budgets.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.Queue.WorkerCount, err = getEnvInt("WORKER_COUNT", cfg.Queue.WorkerCount); err != nil {
		return nil, err
	}

	if cfg.Budgets.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Budgets.MaxSearches < 1 {
		return nil, fmt.Errorf("MAX_SEARCHES must be >= 1")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}
