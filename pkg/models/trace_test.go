package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyForAttempt(t *testing.T) {
	assert.Equal(t, StrategyVerbatim, StrategyForAttempt(1))
	assert.Equal(t, StrategyKeywordExpansion, StrategyForAttempt(2))
	assert.Equal(t, StrategyQuestionReframing, StrategyForAttempt(3))
	assert.Equal(t, StrategyDomainRestricted, StrategyForAttempt(4))

	// The schedule cycles past its length.
	assert.Equal(t, StrategyVerbatim, StrategyForAttempt(5))
	assert.Equal(t, StrategyKeywordExpansion, StrategyForAttempt(6))
}

func TestStrategyForAttemptClampsBelowOne(t *testing.T) {
	assert.Equal(t, StrategyVerbatim, StrategyForAttempt(0))
	assert.Equal(t, StrategyVerbatim, StrategyForAttempt(-3))
}
