// Package planner drives a query session from INIT to a terminal
// status: budget enforcement, strategy rotation, cache arbitration,
// and a persisted trace row per attempt.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veriweb/veriweb/pkg/config"
	"github.com/veriweb/veriweb/pkg/llm"
	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/research"
	"github.com/veriweb/veriweb/pkg/search"
	"github.com/veriweb/veriweb/pkg/storage"
	"github.com/veriweb/veriweb/pkg/synthesis"
)

// Stop reasons recorded on traces by the planner itself, in addition
// to the verifier's.
const (
	stopReasonSearchBudget    = "search budget exhausted"
	stopReasonNoDocuments     = "no usable documents after all attempts"
	stopReasonPermanentSearch = "permanent search provider error"
	stopReasonPermanentLLM    = "permanent llm provider error"
	stopReasonAborted         = "attempt aborted before a decision"
)

// Planner owns the per-session state machine.
type Planner struct {
	store   storage.Store
	agent   *research.Agent
	synth   *synthesis.Synthesizer
	llm     llm.Client
	budgets config.Budgets
	clock   storage.Clock
}

// New wires a Planner. The llm client is used only for the
// QUESTION_REFRAMING strategy; the extraction and synthesis clients
// live inside agent and synth.
func New(store storage.Store, agent *research.Agent, synth *synthesis.Synthesizer, client llm.Client, budgets config.Budgets, clock storage.Clock) *Planner {
	if clock == nil {
		clock = storage.SystemClock{}
	}
	return &Planner{
		store:   store,
		agent:   agent,
		synth:   synth,
		llm:     client,
		budgets: budgets,
		clock:   clock,
	}
}

// Run drives one session to DONE or FAILED. Safe to invoke exactly
// once per session; a session not in INIT is left untouched with a
// logged warning. The caller bounds ctx with the session wall-clock
// budget.
func (p *Planner) Run(ctx context.Context, sessionID string) error {
	session, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("planner: load session: %w", err)
	}
	if session.Status != models.StatusInit {
		slog.Warn("Session already driven, refusing to run again",
			"session_id", sessionID,
			"status", session.Status)
		return nil
	}

	logger := slog.With("session_id", sessionID)
	logger.Info("Planner starting", "question", session.Question)

	outcome, err := p.runAttempts(ctx, logger, session)
	if err != nil {
		p.fail(ctx, logger, sessionID, outcome)
		return err
	}

	if err := p.synthesize(ctx, logger, session, outcome); err != nil {
		p.fail(ctx, logger, sessionID, outcome)
		return err
	}
	return nil
}

// sessionOutcome carries what the attempt loop produced into the
// synthesis phase.
type sessionOutcome struct {
	last        research.AttemptResult
	decision    models.VerificationDecision
	acceptHash  string
	cachedFrom  string // session id of a cache hit, empty otherwise
	hasEvidence bool
}

// runAttempts executes the RESEARCH/VERIFY loop. A non-nil error
// means the session must fail; otherwise the outcome feeds
// synthesis.
func (p *Planner) runAttempts(ctx context.Context, logger *slog.Logger, session *models.QuerySession) (*sessionOutcome, error) {
	outcome := &sessionOutcome{decision: models.DecisionStop}
	searchesUsed := 0

	for attempt := 1; attempt <= p.budgets.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcome, fmt.Errorf("planner: session budget exceeded: %w", err)
		}
		if err := p.store.UpdateSessionStatus(ctx, session.ID, models.StatusResearch); err != nil {
			return outcome, fmt.Errorf("planner: enter RESEARCH: %w", err)
		}

		strategy := models.StrategyForAttempt(attempt)
		numDocs := p.budgets.DocsForAttempt(attempt)
		logger.Info("Attempt starting",
			"attempt", attempt,
			"strategy", strategy,
			"num_docs", numDocs)

		// Cache probe on retries only. The first attempt always does
		// real research so fresh questions are answered fresh.
		if attempt >= 2 {
			hash := QueryHash(session.Question, strategy, numDocs)
			if hit := p.probeCache(ctx, logger, hash); hit != nil {
				outcome.cachedFrom = hit.SessionID
				outcome.decision = models.DecisionAccept
				p.writeTrace(ctx, logger, &models.PlannerTrace{
					SessionID:    session.ID,
					AttemptNum:   attempt,
					PlannerState: models.StatusSynthesize,
					Strategy:     strategy,
					NumDocs:      numDocs,
					Decision:     models.DecisionAccept,
				})
				return outcome, nil
			}
		}

		if searchesUsed >= p.budgets.MaxSearches {
			logger.Warn("Search budget exhausted before attempt", "attempt", attempt)
			p.writeTrace(ctx, logger, &models.PlannerTrace{
				SessionID:    session.ID,
				AttemptNum:   attempt,
				PlannerState: models.StatusResearch,
				Strategy:     strategy,
				NumDocs:      numDocs,
				Decision:     models.DecisionStop,
				StopReason:   stopReasonSearchBudget,
			})
			outcome.decision = models.DecisionStop
			return outcome, nil
		}

		query := BuildQuery(ctx, p.llm, strategy, session.Question)
		result := p.agent.Run(ctx, session.Question, query, numDocs, attempt, p.budgets.MaxAttempts)
		searchesUsed++

		p.writeSearchLog(ctx, logger, &models.SearchLog{
			SessionID:  session.ID,
			AttemptNum: attempt,
			QueryUsed:  query,
			NumDocs:    len(result.Documents),
			Success:    result.SearchSucceeded,
		})

		trace := &models.PlannerTrace{
			SessionID:  session.ID,
			AttemptNum: attempt,
			Strategy:   strategy,
			NumDocs:    numDocs,
			Decision:   models.DecisionStop,
			StopReason: stopReasonAborted,
		}

		// A 4xx from the provider will not heal on retry.
		if result.SearchErr != nil && errors.Is(result.SearchErr, search.ErrPermanent) {
			trace.PlannerState = models.StatusResearch
			trace.StopReason = stopReasonPermanentSearch
			p.writeTrace(ctx, logger, trace)
			return outcome, fmt.Errorf("planner: %s: %w", stopReasonPermanentSearch, result.SearchErr)
		}

		// Same for the extraction LLM: a rejected key or model burns
		// the whole budget without producing a claim. Fail now.
		if result.LLMErr != nil {
			trace.PlannerState = models.StatusResearch
			trace.StopReason = stopReasonPermanentLLM
			p.writeTrace(ctx, logger, trace)
			return outcome, fmt.Errorf("planner: %s: %w", stopReasonPermanentLLM, result.LLMErr)
		}

		// No usable documents: rotate the strategy and retry, or fail
		// once the attempt budget is gone.
		if !result.SearchSucceeded || len(result.Documents) == 0 {
			trace.PlannerState = models.StatusResearch
			if attempt < p.budgets.MaxAttempts && searchesUsed < p.budgets.MaxSearches {
				trace.Decision = models.DecisionRetry
				trace.StopReason = ""
				p.writeTrace(ctx, logger, trace)
				continue
			}
			trace.StopReason = stopReasonNoDocuments
			p.writeTrace(ctx, logger, trace)
			return outcome, fmt.Errorf("planner: %s", stopReasonNoDocuments)
		}

		if err := p.store.UpdateSessionStatus(ctx, session.ID, models.StatusVerify); err != nil {
			return outcome, fmt.Errorf("planner: enter VERIFY: %w", err)
		}

		outcome.last = result
		outcome.hasEvidence = true
		outcome.decision = result.Decision

		trace.PlannerState = models.StatusVerify
		trace.Decision = result.Decision
		trace.StopReason = result.StopReason

		switch result.Decision {
		case models.DecisionAccept:
			p.writeTrace(ctx, logger, trace)
			outcome.acceptHash = QueryHash(session.Question, strategy, numDocs)
			return outcome, nil
		case models.DecisionRetry:
			if searchesUsed >= p.budgets.MaxSearches {
				// The verifier wants another pass but the search
				// budget is gone; synthesize what we have.
				trace.Decision = models.DecisionStop
				trace.StopReason = stopReasonSearchBudget
				outcome.decision = models.DecisionStop
				p.writeTrace(ctx, logger, trace)
				return outcome, nil
			}
			p.writeTrace(ctx, logger, trace)
			continue
		default: // STOP
			p.writeTrace(ctx, logger, trace)
			return outcome, nil
		}
	}

	// Loop exits normally only when the final attempt decided RETRY
	// with attempts exhausted; Decide maps that to STOP, so this is
	// unreachable in practice. Treat it as STOP.
	outcome.decision = models.DecisionStop
	return outcome, nil
}

// synthesize writes the answer and evidence, flips the session to
// DONE, and populates the cache when the evidence was accepted.
func (p *Planner) synthesize(ctx context.Context, logger *slog.Logger, session *models.QuerySession, outcome *sessionOutcome) error {
	if err := p.store.UpdateSessionStatus(ctx, session.ID, models.StatusSynthesize); err != nil {
		return fmt.Errorf("planner: enter SYNTHESIZE: %w", err)
	}

	var (
		snapshot *models.AnswerSnapshot
		evidence []models.Evidence
	)

	if outcome.cachedFrom != "" {
		cachedSnapshot, cachedEvidence, err := p.store.ReadResult(ctx, outcome.cachedFrom)
		if err != nil || cachedSnapshot == nil {
			return fmt.Errorf("planner: read cached result %s: %w", outcome.cachedFrom, err)
		}
		snapshot = &models.AnswerSnapshot{
			SessionID:        session.ID,
			AnswerText:       cachedSnapshot.AnswerText,
			ConfidenceLevel:  cachedSnapshot.ConfidenceLevel,
			ConfidenceReason: cachedSnapshot.ConfidenceReason,
			CreatedAt:        p.clock.Now(),
		}
		evidence = copyEvidence(session.ID, cachedEvidence, p.clock.Now())
	} else {
		groups := outcome.last.Groups
		level := outcome.last.ConfidenceLevel
		reason := outcome.last.ConfidenceReason
		if !outcome.hasEvidence {
			level = models.ConfidenceLow
			reason = "No usable documents were retrieved."
		}

		answer, err := p.synth.Synthesize(ctx, session.Question, groups, level)
		if err != nil {
			if errors.Is(err, llm.ErrPermanent) {
				return fmt.Errorf("planner: %s: %w", stopReasonPermanentLLM, err)
			}
			logger.Warn("Synthesis failed, falling back to abstention", "error", err)
			answer = synthesis.AbstentionAnswer
		}

		snapshot = &models.AnswerSnapshot{
			SessionID:        session.ID,
			AnswerText:       answer,
			ConfidenceLevel:  level,
			ConfidenceReason: reason,
			CreatedAt:        p.clock.Now(),
		}
		evidence = evidenceFromGroups(session.ID, groups, p.clock.Now())
	}

	if err := p.store.WriteAnswer(ctx, snapshot, evidence); err != nil {
		return fmt.Errorf("planner: write answer: %w", err)
	}
	if err := p.store.UpdateSessionStatus(ctx, session.ID, models.StatusDone); err != nil {
		return fmt.Errorf("planner: enter DONE: %w", err)
	}

	// Cache only accepted fresh answers. Cache hits are already
	// cached under their own key; first writer wins on races.
	if outcome.acceptHash != "" && outcome.decision == models.DecisionAccept {
		entry := &models.CacheEntry{
			QueryHash: outcome.acceptHash,
			SessionID: session.ID,
			ExpiresAt: p.clock.Now().Add(p.budgets.CacheTTL),
			CreatedAt: p.clock.Now(),
		}
		if err := p.store.CachePut(ctx, entry); err != nil {
			logger.Warn("Cache write failed", "error", err)
		}
	}

	logger.Info("Session complete",
		"status", models.StatusDone,
		"confidence", snapshot.ConfidenceLevel,
		"evidence_count", len(evidence),
		"cached", outcome.cachedFrom != "")
	return nil
}

// fail transitions the session to FAILED, persisting whatever
// evidence the attempts gathered. Best-effort; runs under a context
// that survives session cancellation.
func (p *Planner) fail(ctx context.Context, logger *slog.Logger, sessionID string, outcome *sessionOutcome) {
	bg := context.WithoutCancel(ctx)
	if outcome != nil && outcome.hasEvidence {
		evidence := evidenceFromGroups(sessionID, outcome.last.Groups, p.clock.Now())
		if err := p.store.WriteEvidence(bg, sessionID, evidence); err != nil {
			logger.Error("Failed to persist partial evidence", "error", err)
		}
	}
	if err := p.store.UpdateSessionStatus(bg, sessionID, models.StatusFailed); err != nil {
		logger.Error("Failed to mark session FAILED", "error", err)
	}
	logger.Warn("Session failed")
}

// probeCache returns the cache entry for a hash, or nil.
func (p *Planner) probeCache(ctx context.Context, logger *slog.Logger, hash string) *models.CacheEntry {
	entry, err := p.store.CacheGet(ctx, hash)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("Cache probe failed", "error", err)
		}
		return nil
	}
	logger.Info("Cache hit", "source_session", entry.SessionID)
	return entry
}

// writeTrace persists an attempt row. Trace rows must land even when
// the surrounding attempt is being aborted, so failures are logged
// and swallowed except for duplicates, which indicate a double-run.
func (p *Planner) writeTrace(ctx context.Context, logger *slog.Logger, trace *models.PlannerTrace) {
	trace.CreatedAt = p.clock.Now()
	if err := p.store.AppendPlannerTrace(context.WithoutCancel(ctx), trace); err != nil {
		if errors.Is(err, storage.ErrDuplicateTrace) {
			logger.Error("Duplicate trace row, session driven twice",
				"attempt", trace.AttemptNum)
			return
		}
		logger.Error("Failed to write planner trace",
			"attempt", trace.AttemptNum, "error", err)
	}
}

func (p *Planner) writeSearchLog(ctx context.Context, logger *slog.Logger, log *models.SearchLog) {
	log.CreatedAt = p.clock.Now()
	if err := p.store.AppendSearchLog(context.WithoutCancel(ctx), log); err != nil {
		logger.Error("Failed to write search log",
			"attempt", log.AttemptNum, "error", err)
	}
}

func evidenceFromGroups(sessionID string, groups []models.VerifiedClaim, now time.Time) []models.Evidence {
	out := make([]models.Evidence, 0, len(groups))
	for _, g := range groups {
		urls := make([]string, 0, len(g.SupportURLs)+len(g.OpposeURLs))
		urls = append(urls, g.SupportURLs...)
		urls = append(urls, g.OpposeURLs...)
		out = append(out, models.Evidence{
			SessionID:   sessionID,
			ClaimText:   g.CanonicalText,
			Status:      g.Status,
			SourceURLs:  urls,
			DomainCount: g.DomainCount,
			CreatedAt:   now,
		})
	}
	return out
}

func copyEvidence(sessionID string, src []models.Evidence, now time.Time) []models.Evidence {
	out := make([]models.Evidence, 0, len(src))
	for _, e := range src {
		out = append(out, models.Evidence{
			SessionID:   sessionID,
			ClaimText:   e.ClaimText,
			Status:      e.Status,
			SourceURLs:  append([]string(nil), e.SourceURLs...),
			DomainCount: e.DomainCount,
			CreatedAt:   now,
		})
	}
	return out
}
