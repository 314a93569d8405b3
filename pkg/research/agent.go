// Package research coordinates one attempt of the pipeline: web
// environment, claim extraction, verification, and confidence
// scoring. It never touches persistence; the planner writes traces.
package research

import (
	"context"
	"errors"
	"log/slog"

	"github.com/veriweb/veriweb/pkg/claims"
	"github.com/veriweb/veriweb/pkg/llm"
	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/verify"
	"github.com/veriweb/veriweb/pkg/webenv"
)

// AttemptResult bundles everything the planner needs to decide what
// to do after one attempt.
type AttemptResult struct {
	Documents []models.Document
	Claims    []models.Claim
	Groups    []models.VerifiedClaim

	ConfidenceLevel  models.ConfidenceLevel
	ConfidenceReason string

	// Decision is the verifier's directive for this attempt. The
	// planner may still downgrade RETRY to STOP when the search
	// budget is gone; it is the authority on budget remaining.
	Decision   models.VerificationDecision
	StopReason string

	// SearchSucceeded is false when the search provider itself
	// failed; the attempt produced nothing and is a retry candidate.
	SearchSucceeded bool
	SearchErr       error

	// LLMErr is set when claim extraction hit a permanent provider
	// error. Retrying other documents or strategies cannot help; the
	// planner fails the session.
	LLMErr error
}

// Agent runs single attempts.
type Agent struct {
	env       *webenv.Environment
	extractor *claims.Extractor
	engine    *verify.Engine
}

// NewAgent wires the attempt pipeline.
func NewAgent(env *webenv.Environment, extractor *claims.Extractor, engine *verify.Engine) *Agent {
	return &Agent{env: env, extractor: extractor, engine: engine}
}

// Run executes one attempt. query is the strategy-expanded search
// string; question is the original user question, used for claim
// relevance filtering. attempt and maxAttempts feed the
// VerificationDecision. Transient extraction failures on individual
// documents are logged and skipped; a permanent LLM error aborts the
// attempt via LLMErr.
func (a *Agent) Run(ctx context.Context, question, query string, numDocs, attempt, maxAttempts int) AttemptResult {
	envResult := a.env.Run(ctx, query, numDocs)
	if !envResult.Success {
		return AttemptResult{SearchSucceeded: false, SearchErr: envResult.Err}
	}

	var extracted []models.Claim
	for _, doc := range envResult.Documents {
		docClaims, err := a.extractor.Extract(ctx, question, doc)
		if err != nil {
			if errors.Is(err, llm.ErrPermanent) {
				slog.Error("Claim extraction hit a permanent LLM error, aborting attempt",
					"url", doc.URL, "error", err)
				return AttemptResult{
					Documents:       envResult.Documents,
					SearchSucceeded: true,
					LLMErr:          err,
				}
			}
			slog.Warn("Claim extraction failed, skipping document",
				"url", doc.URL, "error", err)
			continue
		}
		extracted = append(extracted, docClaims...)
	}

	groups := a.engine.Verify(extracted)
	verify.SortByStrength(groups)
	level, reason := verify.Score(groups)
	decision, stopReason := a.engine.Decide(groups, attempt, maxAttempts)

	slog.Info("Research attempt complete",
		"documents", len(envResult.Documents),
		"claims", len(extracted),
		"groups", len(groups),
		"confidence", level,
		"decision", decision)

	return AttemptResult{
		Documents:        envResult.Documents,
		Claims:           extracted,
		Groups:           groups,
		ConfidenceLevel:  level,
		ConfidenceReason: reason,
		Decision:         decision,
		StopReason:       stopReason,
		SearchSucceeded:  true,
	}
}
