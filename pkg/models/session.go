// Package models defines the durable entities of the research pipeline.
package models

import "time"

// SessionStatus is the planner state persisted on a QuerySession.
// Statuses advance monotonically; DONE and FAILED are terminal.
type SessionStatus string

// Session status constants.
const (
	StatusInit       SessionStatus = "INIT"
	StatusResearch   SessionStatus = "RESEARCH"
	StatusVerify     SessionStatus = "VERIFY"
	StatusSynthesize SessionStatus = "SYNTHESIZE"
	StatusDone       SessionStatus = "DONE"
	StatusFailed     SessionStatus = "FAILED"
)

// IsTerminal reports whether the status is DONE or FAILED.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusInit, StatusResearch, StatusVerify, StatusSynthesize, StatusDone, StatusFailed:
		return true
	}
	return false
}

// rank orders statuses along the planner DAG. RESEARCH and VERIFY
// alternate within a session, so they share a rank.
func (s SessionStatus) rank() int {
	switch s {
	case StatusInit:
		return 0
	case StatusResearch, StatusVerify:
		return 1
	case StatusSynthesize:
		return 2
	case StatusDone, StatusFailed:
		return 3
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic state machine. Terminal states are never left.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	// FAILED is reachable from any non-terminal state.
	if next == StatusFailed {
		return true
	}
	return next.rank() >= s.rank()
}

// QuerySession is one user question driven through the planner.
type QuerySession struct {
	ID        string        `json:"session_id"`
	Question  string        `json:"question"`
	Status    SessionStatus `json:"status"`
	PodID     *string       `json:"pod_id,omitempty"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	// LastHeartbeatAt supports orphan detection for claimed sessions.
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
