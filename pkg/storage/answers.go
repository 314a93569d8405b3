package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/veriweb/veriweb/pkg/models"
)

// WriteAnswer persists the snapshot and its evidence atomically.
// The snapshot insert and the evidence bulk write share one
// transaction; a failure rolls back both.
func (db *DB) WriteAnswer(ctx context.Context, snapshot *models.AnswerSnapshot, evidence []models.Evidence) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin answer write: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snapshot.CreatedAt = db.clock.Now()
	_, err = tx.Exec(ctx,
		`INSERT INTO answer_snapshots
		 (session_id, answer_text, confidence_level, confidence_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		snapshot.SessionID, snapshot.AnswerText, snapshot.ConfidenceLevel,
		snapshot.ConfidenceReason, snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert answer snapshot: %w", err)
	}

	if err := insertEvidence(ctx, tx, snapshot.SessionID, evidence, snapshot.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit answer write: %w", err)
	}
	return nil
}

// WriteEvidence persists evidence without a snapshot. Used for
// best-effort persistence of partial evidence on FAILED sessions.
func (db *DB) WriteEvidence(ctx context.Context, sessionID string, evidence []models.Evidence) error {
	if len(evidence) == 0 {
		return nil
	}
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin evidence write: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertEvidence(ctx, tx, sessionID, evidence, db.clock.Now()); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit evidence write: %w", err)
	}
	return nil
}

func insertEvidence(ctx context.Context, tx pgx.Tx, sessionID string, evidence []models.Evidence, now time.Time) error {
	if len(evidence) == 0 {
		return nil
	}
	rows := make([][]any, len(evidence))
	for i, ev := range evidence {
		urls := ev.SourceURLs
		if urls == nil {
			urls = []string{}
		}
		rows[i] = []any{sessionID, ev.ClaimText, string(ev.Status), urls, ev.DomainCount, now}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"evidence"},
		[]string{"session_id", "claim_text", "verification_status", "source_urls", "domain_count", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("storage: copy evidence: %w", err)
	}
	return nil
}

// ReadResult returns the snapshot and evidence of a terminal session.
func (db *DB) ReadResult(ctx context.Context, sessionID string) (*models.AnswerSnapshot, []models.Evidence, error) {
	session, err := db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !session.Status.IsTerminal() {
		return nil, nil, ErrNotReady
	}

	var snapshot *models.AnswerSnapshot
	row := db.pool.QueryRow(ctx,
		`SELECT session_id, answer_text, confidence_level, confidence_reason, created_at
		 FROM answer_snapshots WHERE session_id = $1`,
		sessionID,
	)
	var s models.AnswerSnapshot
	err = row.Scan(&s.SessionID, &s.AnswerText, &s.ConfidenceLevel, &s.ConfidenceReason, &s.CreatedAt)
	switch {
	case err == nil:
		snapshot = &s
	case errors.Is(err, pgx.ErrNoRows):
		// FAILED sessions may have no snapshot; caller fills the
		// abstention document.
	default:
		return nil, nil, fmt.Errorf("storage: read answer snapshot: %w", err)
	}

	evidence, err := db.ListEvidence(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return snapshot, evidence, nil
}

// ListEvidence returns the evidence rows of a session in insert order.
func (db *DB) ListEvidence(ctx context.Context, sessionID string) ([]models.Evidence, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, claim_text, verification_status, source_urls, domain_count, created_at
		 FROM evidence WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list evidence: %w", err)
	}
	defer rows.Close()

	var out []models.Evidence
	for rows.Next() {
		var ev models.Evidence
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.ClaimText, &ev.Status,
			&ev.SourceURLs, &ev.DomainCount, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate evidence: %w", err)
	}
	return out, nil
}
