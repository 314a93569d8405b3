package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veriweb/veriweb/pkg/models"
)

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "what year was voyager 1 launched",
		NormalizeQuestion("  What  year was\tVoyager 1   launched?"))
	assert.Equal(t, "hello world", NormalizeQuestion("Hello World!"))
	assert.Equal(t, "", NormalizeQuestion("   "))
}

func TestQueryHashStableUnderCosmeticEdits(t *testing.T) {
	base := QueryHash("What year was Voyager 1 launched?", models.StrategyVerbatim, 5)

	assert.Equal(t, base, QueryHash("what year was voyager 1 launched", models.StrategyVerbatim, 5))
	assert.Equal(t, base, QueryHash("  What year   was Voyager 1 launched? ", models.StrategyVerbatim, 5))
	assert.Equal(t, base, QueryHash("WHAT YEAR WAS VOYAGER 1 LAUNCHED", models.StrategyVerbatim, 5))
}

func TestQueryHashDistinguishesComponents(t *testing.T) {
	base := QueryHash("question", models.StrategyVerbatim, 5)

	assert.NotEqual(t, base, QueryHash("other question", models.StrategyVerbatim, 5))
	assert.NotEqual(t, base, QueryHash("question", models.StrategyKeywordExpansion, 5))
	assert.NotEqual(t, base, QueryHash("question", models.StrategyVerbatim, 8))
}
