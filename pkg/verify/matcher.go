// Package verify groups extracted claims into equivalence classes,
// labels each group against independent-domain and polarity rules,
// and decides whether an attempt's evidence is good enough to accept.
package verify

import (
	"math"
	"regexp"
	"strings"

	"github.com/veriweb/veriweb/pkg/claims"
	"github.com/veriweb/veriweb/pkg/models"
)

// SimilarityThreshold is the cosine cutoff for two claims to be
// considered the same statement.
const SimilarityThreshold = 0.72

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// NormalizeClaim lowercases, strips punctuation, and collapses
// whitespace. Exact match after normalization always groups.
func NormalizeClaim(text string) string {
	lower := strings.ToLower(text)
	stripped := punctuation.ReplaceAllString(lower, "")
	return strings.Join(strings.Fields(stripped), " ")
}

// cosine computes similarity between the content-word sets of two
// claims, treating each set as a binary vector.
func cosine(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// sameStatement is the pairwise grouping predicate.
func sameStatement(normA, normB string, wordsA, wordsB map[string]bool) bool {
	if normA == normB {
		return true
	}
	return cosine(wordsA, wordsB) >= SimilarityThreshold
}

// Group partitions claims into equivalence classes under the
// transitive closure of the similarity predicate. Group order and
// in-group order follow first appearance.
func Group(claimList []models.Claim) [][]models.Claim {
	n := len(claimList)
	if n == 0 {
		return nil
	}

	norms := make([]string, n)
	words := make([]map[string]bool, n)
	for i, c := range claimList {
		norms[i] = NormalizeClaim(c.Text)
		words[i] = claims.ContentWords(c.Text)
	}

	// Union-find over pairwise matches gives the transitive closure.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sameStatement(norms[i], norms[j], words[i], words[j]) {
				union(i, j)
			}
		}
	}

	order := make([]int, 0, n)
	byRoot := make(map[int][]models.Claim)
	for i, c := range claimList {
		root := find(i)
		if _, ok := byRoot[root]; !ok {
			order = append(order, root)
		}
		byRoot[root] = append(byRoot[root], c)
	}

	groups := make([][]models.Claim, 0, len(order))
	for _, root := range order {
		groups = append(groups, byRoot[root])
	}
	return groups
}
