package claims

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

var stopwords = map[string]bool{
	"the": true, "is": true, "a": true, "an": true, "of": true,
	"to": true, "and": true, "in": true, "for": true, "on": true,
	"with": true, "by": true, "as": true, "that": true, "this": true,
}

// ContentWords lowercases, strips punctuation, and returns the set of
// non-stopword tokens longer than three characters.
func ContentWords(text string) map[string]bool {
	cleaned := nonAlnum.ReplaceAllString(strings.ToLower(text), "")
	words := make(map[string]bool)
	for _, w := range strings.Fields(cleaned) {
		if len(w) > 3 && !stopwords[w] {
			words[w] = true
		}
	}
	return words
}

// Relevant reports whether a claim shares at least two content words
// with the question. Off-topic claims from otherwise usable pages are
// dropped before verification.
func Relevant(claim, question string) bool {
	claimWords := ContentWords(claim)
	questionWords := ContentWords(question)
	shared := 0
	for w := range claimWords {
		if questionWords[w] {
			shared++
			if shared >= 2 {
				return true
			}
		}
	}
	return false
}
