package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/veriweb/veriweb/pkg/models"
)

// AppendPlannerTrace writes one attempt row. The unique constraint on
// (session_id, attempt_number) backs the at-most-one-trace invariant.
func (db *DB) AppendPlannerTrace(ctx context.Context, trace *models.PlannerTrace) error {
	trace.CreatedAt = db.clock.Now()
	err := db.pool.QueryRow(ctx,
		`INSERT INTO planner_traces
		 (session_id, attempt_number, planner_state, strategy_used, num_docs,
		  verification_decision, stop_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		 RETURNING id`,
		trace.SessionID, trace.AttemptNum, trace.PlannerState, trace.Strategy,
		trace.NumDocs, trace.Decision, trace.StopReason, trace.CreatedAt,
	).Scan(&trace.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTrace
		}
		return fmt.Errorf("storage: append planner trace: %w", err)
	}
	return nil
}

// AppendSearchLog records one search invocation.
func (db *DB) AppendSearchLog(ctx context.Context, log *models.SearchLog) error {
	log.CreatedAt = db.clock.Now()
	err := db.pool.QueryRow(ctx,
		`INSERT INTO search_logs
		 (session_id, attempt_number, query_used, num_docs, success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		log.SessionID, log.AttemptNum, log.QueryUsed, log.NumDocs, log.Success, log.CreatedAt,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("storage: append search log: %w", err)
	}
	return nil
}

// ReadTrace returns all planner traces and search logs for a session,
// ordered by attempt.
func (db *DB) ReadTrace(ctx context.Context, sessionID string) ([]models.PlannerTrace, []models.SearchLog, error) {
	if _, err := db.GetSession(ctx, sessionID); err != nil {
		return nil, nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, attempt_number, planner_state, strategy_used,
		        num_docs, verification_decision, COALESCE(stop_reason, ''), created_at
		 FROM planner_traces WHERE session_id = $1 ORDER BY attempt_number`,
		sessionID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: read planner traces: %w", err)
	}
	defer rows.Close()

	var traces []models.PlannerTrace
	for rows.Next() {
		var t models.PlannerTrace
		if err := rows.Scan(&t.ID, &t.SessionID, &t.AttemptNum, &t.PlannerState,
			&t.Strategy, &t.NumDocs, &t.Decision, &t.StopReason, &t.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("storage: scan planner trace: %w", err)
		}
		traces = append(traces, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("storage: iterate planner traces: %w", err)
	}

	logRows, err := db.pool.Query(ctx,
		`SELECT id, session_id, attempt_number, query_used, num_docs, success, created_at
		 FROM search_logs WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: read search logs: %w", err)
	}
	defer logRows.Close()

	var logs []models.SearchLog
	for logRows.Next() {
		var l models.SearchLog
		if err := logRows.Scan(&l.ID, &l.SessionID, &l.AttemptNum, &l.QueryUsed,
			&l.NumDocs, &l.Success, &l.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("storage: scan search log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := logRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("storage: iterate search logs: %w", err)
	}

	return traces, logs, nil
}
