package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 3, cfg.Budgets.MaxAttempts)
	assert.Equal(t, 4, cfg.Budgets.MaxSearches)
	assert.Equal(t, 90*time.Second, cfg.Budgets.SessionTimeout)
	assert.Equal(t, 30*time.Second, cfg.Budgets.LLMCallTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Budgets.CacheTTL)
	assert.Equal(t, float64(10), cfg.Search.RatePerSecond)
	assert.Equal(t, 2*time.Second, cfg.Search.RateWait)
}

func TestDocsForAttempt(t *testing.T) {
	b := Defaults().Budgets

	assert.Equal(t, 5, b.DocsForAttempt(1))
	assert.Equal(t, 8, b.DocsForAttempt(2))
	assert.Equal(t, 11, b.DocsForAttempt(3))
	assert.Equal(t, 14, b.DocsForAttempt(4))

	// Capped at MaxDocs.
	assert.Equal(t, 15, b.DocsForAttempt(5))
	assert.Equal(t, 15, b.DocsForAttempt(100))

	// Attempts below 1 behave like the first attempt.
	assert.Equal(t, 5, b.DocsForAttempt(0))
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/veriweb")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("SESSION_TIMEOUT_SECONDS", "120")
	t.Setenv("CACHE_TTL_SECONDS", "3600")
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("INTERNAL_TRACE_TOKEN", "sekrit")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Budgets.MaxAttempts)
	assert.Equal(t, 120*time.Second, cfg.Budgets.SessionTimeout)
	assert.Equal(t, time.Hour, cfg.Budgets.CacheTTL)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sekrit", cfg.InternalTraceToken)
}

func TestLoadRejectsUnparsableValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/veriweb")
	t.Setenv("MAX_ATTEMPTS", "three")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ATTEMPTS")
}

func TestLoadRejectsNonPositiveBudgets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/veriweb")
	t.Setenv("MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
}
