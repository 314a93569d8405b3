// Package synthesis turns verified claims into a short grounded
// answer. The LLM is used for phrasing only; a numeric integrity
// check guards against invented figures.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veriweb/veriweb/pkg/llm"
	"github.com/veriweb/veriweb/pkg/models"
)

// AbstentionAnswer is emitted when no claims survive verification.
const AbstentionAnswer = "Insufficient verified evidence."

const synthesisSystemPrompt = "You are a professional research summarizer. " +
	"You compose answers strictly from the claims you are given."

const synthesisPromptTemplate = `STRICT RULES:
- Use ONLY the claims provided below
- Do NOT add new facts, numbers, or URLs
- Do NOT infer or speculate
- Do NOT change claim meaning
- Be cautious and professional in tone
- One short paragraph only
- If the claims cannot answer the question, reply exactly: %s

Question:
%s

Claims:
%s

Overall Confidence Level: %s

Compose a clear, honest answer based ONLY on the above.`

// stricterSuffix is appended on the retry after a failed integrity
// check.
const stricterSuffix = `

IMPORTANT: your previous draft introduced a number that does not
appear in the claims. Repeat numeric values EXACTLY as written in the
claims, or omit them entirely.`

// Synthesizer produces answer text from resolved claim groups.
type Synthesizer struct {
	llm llm.Client
}

// New creates a Synthesizer over a completion client.
func New(client llm.Client) *Synthesizer {
	return &Synthesizer{llm: client}
}

// Synthesize builds the grounded answer for one session.
//
// Only VERIFIED groups feed the prompt; UNVERIFIED groups are used,
// flagged tentative, only when nothing verified exists. CONFLICT
// groups never appear in the answer. Output failing the numeric
// integrity check gets one stricter retry, then the claims verbatim.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, groups []models.VerifiedClaim, level models.ConfidenceLevel) (string, error) {
	selected, tentative := selectClaims(groups)
	if len(selected) == 0 {
		return AbstentionAnswer, nil
	}

	block := claimsBlock(selected, tentative)
	prompt := fmt.Sprintf(synthesisPromptTemplate, AbstentionAnswer, question, block, level)

	answer, err := s.llm.Complete(ctx, synthesisSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("synthesis: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if NumbersGrounded(answer, selected) {
		return answer, nil
	}

	slog.Warn("Synthesized answer introduced ungrounded numbers, retrying with stricter prompt")
	answer, err = s.llm.Complete(ctx, synthesisSystemPrompt, prompt+stricterSuffix)
	if err != nil {
		return "", fmt.Errorf("synthesis: stricter retry: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if NumbersGrounded(answer, selected) {
		return answer, nil
	}

	slog.Warn("Stricter retry still ungrounded, falling back to verbatim claims")
	return verbatimFallback(selected, tentative), nil
}

// selectClaims picks the groups allowed into the prompt. The second
// return is true when only unverified context was available.
func selectClaims(groups []models.VerifiedClaim) ([]models.VerifiedClaim, bool) {
	var verified, unverified []models.VerifiedClaim
	for _, g := range groups {
		switch g.Status {
		case models.ClaimVerified:
			verified = append(verified, g)
		case models.ClaimUnverified:
			unverified = append(unverified, g)
		}
	}
	if len(verified) > 0 {
		return verified, false
	}
	return unverified, true
}

func claimsBlock(selected []models.VerifiedClaim, tentative bool) string {
	var sb strings.Builder
	for _, c := range selected {
		sb.WriteString("- ")
		sb.WriteString(c.CanonicalText)
		fmt.Fprintf(&sb, " (Status: %s)\n", c.Status)
	}
	if tentative {
		sb.WriteString("\nNote: none of these claims could be verified across independent sources. " +
			"The answer must present them as tentative.")
	}
	return sb.String()
}

func verbatimFallback(selected []models.VerifiedClaim, tentative bool) string {
	lines := make([]string, 0, len(selected)+1)
	if tentative {
		lines = append(lines, "Unverified findings:")
	}
	for _, c := range selected {
		lines = append(lines, "- "+c.CanonicalText)
	}
	return strings.Join(lines, "\n")
}
