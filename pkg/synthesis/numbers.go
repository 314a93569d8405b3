package synthesis

import (
	"regexp"
	"strings"

	"github.com/veriweb/veriweb/pkg/models"
)

// numericToken matches numbers as written in prose, including
// thousands separators and decimals.
var numericToken = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

// NumbersGrounded reports whether every numeric token in the answer
// appears, under separator normalization, in at least one input
// claim. An answer with no numbers is trivially grounded.
func NumbersGrounded(answer string, claims []models.VerifiedClaim) bool {
	answerTokens := numericToken.FindAllString(answer, -1)
	if len(answerTokens) == 0 {
		return true
	}

	allowed := make(map[string]bool)
	for _, c := range claims {
		for _, tok := range numericToken.FindAllString(c.CanonicalText, -1) {
			allowed[normalizeNumber(tok)] = true
		}
	}

	for _, tok := range answerTokens {
		if !allowed[normalizeNumber(tok)] {
			return false
		}
	}
	return true
}

// normalizeNumber drops thousands separators so "1,000" and "1000"
// compare equal.
func normalizeNumber(tok string) string {
	return strings.ReplaceAll(tok, ",", "")
}
