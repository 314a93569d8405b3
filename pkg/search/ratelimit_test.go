package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls int
}

func (c *countingProvider) Search(_ context.Context, _ string, _ int) ([]Result, error) {
	c.calls++
	return []Result{{URL: "https://a.com/1"}}, nil
}

func TestRateLimitedProviderPassesThroughWithinBurst(t *testing.T) {
	inner := &countingProvider{}
	limited := NewRateLimitedProvider(inner, 10, 5, time.Second)

	for i := 0; i < 5; i++ {
		results, err := limited.Search(context.Background(), "q", 3)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	}
	assert.Equal(t, 5, inner.calls)
}

func TestRateLimitedProviderFailsTransientWhenSaturated(t *testing.T) {
	inner := &countingProvider{}
	// One token ever, so the second call must wait longer than maxWait.
	limited := NewRateLimitedProvider(inner, 0.001, 1, 20*time.Millisecond)

	_, err := limited.Search(context.Background(), "q", 3)
	require.NoError(t, err)

	_, err = limited.Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimitedProviderHonorsCallerContext(t *testing.T) {
	inner := &countingProvider{}
	limited := NewRateLimitedProvider(inner, 0.001, 1, time.Minute)

	_, err := limited.Search(context.Background(), "q", 3)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Search(ctx, "q", 3)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 1, inner.calls)
}
