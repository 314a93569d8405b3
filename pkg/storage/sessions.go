package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriweb/veriweb/pkg/models"
)

// DB is the PostgreSQL-backed Store.
type DB struct {
	pool  *pgxpool.Pool
	clock Clock
}

// NewDB creates a Store over an existing connection pool.
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool, clock: SystemClock{}}
}

// NewDBWithClock creates a Store with an injected clock (tests).
func NewDBWithClock(pool *pgxpool.Pool, clock Clock) *DB {
	return &DB{pool: pool, clock: clock}
}

const sessionColumns = `id, question, status, pod_id, started_at, last_heartbeat_at, created_at, updated_at`

func scanSession(row pgx.Row) (*models.QuerySession, error) {
	var s models.QuerySession
	err := row.Scan(&s.ID, &s.Question, &s.Status, &s.PodID, &s.StartedAt,
		&s.LastHeartbeatAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: scan session: %w", err)
	}
	return &s, nil
}

// CreateSession inserts a new session in INIT status.
func (db *DB) CreateSession(ctx context.Context, question string) (*models.QuerySession, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("storage: question must not be empty")
	}

	now := db.clock.Now()
	row := db.pool.QueryRow(ctx,
		`INSERT INTO query_sessions (id, question, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING `+sessionColumns,
		uuid.NewString(), question, models.StatusInit, now,
	)
	return scanSession(row)
}

// GetSession returns a session by id.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*models.QuerySession, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrNotFound
	}
	row := db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM query_sessions WHERE id = $1`, sessionID)
	return scanSession(row)
}

// UpdateSessionStatus advances a session's status. The WHERE clause
// excludes terminal statuses so DONE/FAILED rows can never regress.
func (db *DB) UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("storage: invalid session status %q", status)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE query_sessions SET status = $2, updated_at = $3
		 WHERE id = $1 AND status NOT IN ($4, $5)`,
		sessionID, status, db.clock.Now(), models.StatusDone, models.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("storage: update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := db.GetSession(ctx, sessionID); getErr != nil {
			return getErr
		}
		return ErrTerminalSession
	}
	return nil
}

// ClaimNextSession claims the oldest unclaimed INIT session using
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never grab
// the same row.
func (db *DB) ClaimNextSession(ctx context.Context, podID string) (*models.QuerySession, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx,
		`SELECT id FROM query_sessions
		 WHERE status = $1 AND pod_id IS NULL
		 ORDER BY created_at
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		models.StatusInit,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSessionsAvailable
		}
		return nil, fmt.Errorf("storage: query claimable session: %w", err)
	}

	now := db.clock.Now()
	row := tx.QueryRow(ctx,
		`UPDATE query_sessions
		 SET pod_id = $2, started_at = $3, last_heartbeat_at = $3, updated_at = $3
		 WHERE id = $1
		 RETURNING `+sessionColumns,
		id, podID, now,
	)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("storage: claim session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("storage: commit claim: %w", err)
	}
	return session, nil
}

// Heartbeat refreshes last_heartbeat_at for an in-flight session.
func (db *DB) Heartbeat(ctx context.Context, sessionID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE query_sessions SET last_heartbeat_at = $2 WHERE id = $1`,
		sessionID, db.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("storage: heartbeat: %w", err)
	}
	return nil
}

// FailOrphanedSessions recovers sessions claimed by a pod that died:
// non-terminal, claimed, and silent past staleAfter. They cannot be
// requeued because statuses never regress, so they fail.
func (db *DB) FailOrphanedSessions(ctx context.Context, staleAfter time.Duration) (int, error) {
	now := db.clock.Now()
	tag, err := db.pool.Exec(ctx,
		`UPDATE query_sessions
		 SET status = $1, updated_at = $2
		 WHERE status NOT IN ($3, $4)
		   AND pod_id IS NOT NULL
		   AND last_heartbeat_at < $5`,
		models.StatusFailed, now,
		models.StatusDone, models.StatusFailed,
		now.Add(-staleAfter),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: fail orphaned sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
