// Package claims extracts atomic factual claims from fetched
// documents, one bounded LLM call per document, and filters out
// fragments, hedged statements, and page boilerplate.
package claims

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/veriweb/veriweb/pkg/llm"
	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/webenv"
)

const extractionSystemPrompt = "You are an information extraction system. " +
	"You output only bullet lists, never prose."

const extractionPromptTemplate = `Extract ONLY explicit, factual claims from the text below.

Rules:
- Extract only verifiable factual statements
- Each claim must be atomic and self-contained
- One claim per bullet
- Tag each claim with its stance: [AFFIRM] if it asserts the statement holds, [NEGATE] if it asserts the opposite
- Do NOT summarize
- Do NOT infer
- Do NOT rewrite meaning
- Ignore navigation, menus, UI text
- If no factual claims exist, return NONE

Return format:
- <claim 1> [AFFIRM]
- <claim 2> [NEGATE]

TEXT:
%s`

// minClaimLength discards fragments that cannot stand alone.
const minClaimLength = 20

// maxHedgingMarkers is the number of hedging words tolerated before a
// claim is considered speculative rather than factual.
const maxHedgingMarkers = 1

var hedgingMarkers = []string{
	"may",
	"might",
	"could",
	"possibly",
	"perhaps",
	"reportedly",
	"allegedly",
	"rumored",
	"appears to",
	"seems to",
	"suggests",
}

var boilerplateKeywords = []string{
	"all rights reserved",
	"privacy policy",
	"terms of use",
	"terms of service",
	"cookie",
	"copyright",
	"subscribe",
	"sign up",
	"member fdic",
}

var polarityTag = regexp.MustCompile(`\[(AFFIRM|NEGATE)\]\s*$`)

// Extractor turns one document into zero or more tagged claims.
type Extractor struct {
	llm llm.Client
}

// NewExtractor creates an Extractor over a completion client.
func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{llm: client}
}

// Extract runs one completion over the document text and parses the
// bullet list. Claims failing the length, hedging, boilerplate, or
// question-relevance filters are dropped. A document too short to
// carry claims yields an empty slice without an LLM call.
func (e *Extractor) Extract(ctx context.Context, question string, doc models.Document) ([]models.Claim, error) {
	if len(strings.TrimSpace(doc.Text)) < webenv.MinTextLength {
		return nil, nil
	}

	response, err := e.llm.Complete(ctx, extractionSystemPrompt,
		fmt.Sprintf(extractionPromptTemplate, doc.Text))
	if err != nil {
		return nil, fmt.Errorf("claims: extract from %s: %w", doc.URL, err)
	}

	parsed := e.parse(response, question, doc)
	slog.Debug("Claim extraction complete",
		"url", doc.URL,
		"claims", len(parsed))
	return parsed, nil
}

func (e *Extractor) parse(response, question string, doc models.Document) []models.Claim {
	var out []models.Claim
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(line, "-"))

		polarity := models.PolarityUnspecified
		if m := polarityTag.FindStringSubmatch(text); m != nil {
			polarity = models.Polarity(m[1])
			text = strings.TrimSpace(polarityTag.ReplaceAllString(text, ""))
		}

		if len(text) < minClaimLength {
			continue
		}
		if countHedging(text) > maxHedgingMarkers {
			continue
		}
		if isBoilerplate(text) {
			continue
		}
		if !Relevant(text, question) {
			continue
		}

		if polarity == models.PolarityUnspecified {
			polarity = KeywordPolarity(text)
		}

		out = append(out, models.Claim{
			Text:         text,
			Polarity:     polarity,
			SourceURL:    doc.URL,
			SourceDomain: doc.Domain,
		})
	}
	return out
}

func countHedging(text string) int {
	lower := " " + strings.ToLower(text) + " "
	count := 0
	for _, marker := range hedgingMarkers {
		if strings.Contains(lower, " "+marker+" ") {
			count++
		}
	}
	return count
}

func isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range boilerplateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
