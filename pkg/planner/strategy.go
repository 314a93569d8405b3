package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/veriweb/veriweb/pkg/claims"
	"github.com/veriweb/veriweb/pkg/llm"
	"github.com/veriweb/veriweb/pkg/models"
)

// reputableDomains is the shortlist appended by DOMAIN_RESTRICTED.
var reputableDomains = []string{
	"wikipedia.org",
	"britannica.com",
	"reuters.com",
	"apnews.com",
	"nature.com",
	"nasa.gov",
}

const reframePrompt = `Rephrase the following question as a different,
equivalent search query. Keep all named entities and constraints.
Return ONLY the rephrased query, nothing else.

Question: %s`

// BuildQuery mutates the question according to the attempt's
// strategy. QUESTION_REFRAMING falls back to the verbatim question
// when the paraphrase call fails; strategy rotation must not consume
// the attempt budget on its own.
func BuildQuery(ctx context.Context, client llm.Client, strategy models.SearchStrategy, question string) string {
	switch strategy {
	case models.StrategyKeywordExpansion:
		return keywordQuery(question)
	case models.StrategyQuestionReframing:
		return reframedQuery(ctx, client, question)
	case models.StrategyDomainRestricted:
		return question + " " + siteFilter()
	default:
		return question
	}
}

// keywordQuery distills the question to its sorted content words.
// The content-word filter removes punctuation, short words, and the
// claim-matching stopword set; anything else, interrogatives
// included, survives as a keyword.
func keywordQuery(question string) string {
	words := claims.ContentWords(question)
	if len(words) == 0 {
		return question
	}
	keywords := make([]string, 0, len(words))
	for w := range words {
		keywords = append(keywords, w)
	}
	sort.Strings(keywords)
	return strings.Join(keywords, " ")
}

func reframedQuery(ctx context.Context, client llm.Client, question string) string {
	if client == nil {
		return question
	}
	reframed, err := client.Complete(ctx,
		"You rewrite questions into search queries.",
		fmt.Sprintf(reframePrompt, question))
	if err != nil {
		slog.Warn("Question reframing failed, using verbatim question", "error", err)
		return question
	}
	reframed = strings.TrimSpace(reframed)
	if reframed == "" {
		return question
	}
	return reframed
}

func siteFilter() string {
	parts := make([]string, len(reputableDomains))
	for i, d := range reputableDomains {
		parts[i] = "site:" + d
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
