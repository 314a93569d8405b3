// Package storage provides the PostgreSQL repositories for the
// research pipeline. Each method is a short transaction; the answer
// snapshot and its evidence are written atomically.
package storage

import (
	"context"
	"time"

	"github.com/veriweb/veriweb/pkg/models"
)

// Store is the narrow persistence contract used by the planner, the
// worker pool, and the HTTP layer. Tests substitute the in-memory
// implementation from NewMemoryStore.
type Store interface {
	// CreateSession inserts a new session in INIT status.
	CreateSession(ctx context.Context, question string) (*models.QuerySession, error)

	// GetSession returns a session or ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*models.QuerySession, error)

	// UpdateSessionStatus advances a session's status. Transitions out
	// of a terminal status return ErrTerminalSession and change nothing.
	UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus) error

	// ClaimNextSession atomically claims the oldest unclaimed INIT
	// session for podID, or returns ErrNoSessionsAvailable.
	ClaimNextSession(ctx context.Context, podID string) (*models.QuerySession, error)

	// Heartbeat refreshes last_heartbeat_at for an in-flight session.
	Heartbeat(ctx context.Context, sessionID string) error

	// FailOrphanedSessions marks claimed non-terminal sessions whose
	// heartbeat is older than staleAfter as FAILED. Returns how many
	// sessions were recovered.
	FailOrphanedSessions(ctx context.Context, staleAfter time.Duration) (int, error)

	// AppendPlannerTrace writes one attempt row. A duplicate
	// (session, attempt) pair returns ErrDuplicateTrace.
	AppendPlannerTrace(ctx context.Context, trace *models.PlannerTrace) error

	// AppendSearchLog records one search invocation. Append-only.
	AppendSearchLog(ctx context.Context, log *models.SearchLog) error

	// WriteAnswer persists the snapshot and its evidence in one
	// transaction. At most one snapshot per session.
	WriteAnswer(ctx context.Context, snapshot *models.AnswerSnapshot, evidence []models.Evidence) error

	// WriteEvidence persists evidence without a snapshot (partial
	// evidence on FAILED sessions).
	WriteEvidence(ctx context.Context, sessionID string, evidence []models.Evidence) error

	// ReadResult returns the snapshot and evidence of a session.
	// ErrNotReady if the session is not terminal yet.
	ReadResult(ctx context.Context, sessionID string) (*models.AnswerSnapshot, []models.Evidence, error)

	// ReadTrace returns all planner traces and search logs of a session.
	ReadTrace(ctx context.Context, sessionID string) ([]models.PlannerTrace, []models.SearchLog, error)

	// ListEvidence returns the evidence rows of a session.
	ListEvidence(ctx context.Context, sessionID string) ([]models.Evidence, error)

	// CacheGet returns the unexpired entry for a query hash, or
	// ErrNotFound. Expired entries are never returned.
	CacheGet(ctx context.Context, queryHash string) (*models.CacheEntry, error)

	// CachePut stores an entry with put-if-absent semantics: the first
	// writer for a key wins while its entry is live; an expired entry
	// is replaced by the next writer.
	CachePut(ctx context.Context, entry *models.CacheEntry) error

	// PurgeExpiredCache deletes expired cache rows. Returns how many
	// were removed.
	PurgeExpiredCache(ctx context.Context) (int64, error)
}

// Clock abstracts time for cache-expiry tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current wall-clock time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
