package claims

import (
	"strings"

	"github.com/veriweb/veriweb/pkg/models"
)

// Verb-based polarity indicators. Affirm verbs assert that the
// subject holds or improves; negate verbs assert the opposite.
var affirmKeywords = []string{
	"reduce",
	"decrease",
	"lower",
	"decline",
	"fall",
	"slow",
	"limit",
	"control",
	"curb",
}

var negateKeywords = []string{
	"increase",
	"rise",
	"raise",
	"boost",
	"accelerate",
	"worsen",
	"expand",
}

// KeywordPolarity tags a claim by counting indicator verbs. Used as a
// fallback when the extraction prompt's explicit tag is missing or
// malformed.
func KeywordPolarity(text string) models.Polarity {
	lower := strings.ToLower(text)
	var affirm, negate int
	for _, w := range affirmKeywords {
		if strings.Contains(lower, w) {
			affirm++
		}
	}
	for _, w := range negateKeywords {
		if strings.Contains(lower, w) {
			negate++
		}
	}
	switch {
	case affirm > negate:
		return models.PolarityAffirm
	case negate > affirm:
		return models.PolarityNegate
	default:
		return models.PolarityUnspecified
	}
}
