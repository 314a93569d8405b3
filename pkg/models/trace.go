package models

import "time"

// VerificationDecision is the planner's next-action directive after an
// attempt's verification pass.
type VerificationDecision string

// Verification decision constants.
const (
	DecisionAccept VerificationDecision = "ACCEPT"
	DecisionRetry  VerificationDecision = "RETRY"
	DecisionStop   VerificationDecision = "STOP"
)

// SearchStrategy is the question-mutation policy used to form the
// search query. The first attempt always uses StrategyVerbatim;
// retries rotate through the remaining strategies in order, cycling.
type SearchStrategy string

// Search strategy constants, in rotation order.
const (
	StrategyVerbatim          SearchStrategy = "VERBATIM"
	StrategyKeywordExpansion  SearchStrategy = "KEYWORD_EXPANSION"
	StrategyQuestionReframing SearchStrategy = "QUESTION_REFRAMING"
	StrategyDomainRestricted  SearchStrategy = "DOMAIN_RESTRICTED"
)

// StrategyOrder is the fixed rotation schedule.
var StrategyOrder = []SearchStrategy{
	StrategyVerbatim,
	StrategyKeywordExpansion,
	StrategyQuestionReframing,
	StrategyDomainRestricted,
}

// StrategyForAttempt returns the strategy for a 1-based attempt number.
func StrategyForAttempt(attempt int) SearchStrategy {
	if attempt < 1 {
		attempt = 1
	}
	return StrategyOrder[(attempt-1)%len(StrategyOrder)]
}

// PlannerTrace is one attempt row: which strategy ran, how many
// documents were requested, and what the verifier decided.
// At most one trace exists per (session, attempt_number).
type PlannerTrace struct {
	ID           int64                `json:"-"`
	SessionID    string               `json:"-"`
	AttemptNum   int                  `json:"attempt_number"`
	PlannerState SessionStatus        `json:"planner_state"`
	Strategy     SearchStrategy       `json:"strategy_used"`
	NumDocs      int                  `json:"num_docs"`
	Decision     VerificationDecision `json:"verification_decision"`
	StopReason   string               `json:"stop_reason,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// SearchLog records one SearchProvider invocation. Append-only.
type SearchLog struct {
	ID         int64     `json:"-"`
	SessionID  string    `json:"-"`
	AttemptNum int       `json:"attempt_number"`
	QueryUsed  string    `json:"query_used"`
	NumDocs    int       `json:"num_docs"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}
