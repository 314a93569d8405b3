package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/veriweb/veriweb/pkg/models"
)

// NormalizeQuestion canonicalizes a question for fingerprinting: NFC,
// lowercase, collapsed whitespace, terminal punctuation stripped.
// Whitespace-only and case-only edits map to the same fingerprint.
func NormalizeQuestion(question string) string {
	s := norm.NFC.String(question)
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, "?!.")
	return strings.TrimSpace(s)
}

// QueryHash is the cache key: a stable hash over the normalized
// question, the strategy, and the document budget of the attempt.
func QueryHash(question string, strategy models.SearchStrategy, numDocs int) string {
	payload := fmt.Sprintf("%s|%s|%d", NormalizeQuestion(question), strategy, numDocs)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
