package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veriweb/veriweb/pkg/models"
)

// CacheGet returns the unexpired entry for a query hash. Expiry is
// evaluated against the store's clock at read time; stale rows are
// treated as absent and left for opportunistic cleanup.
func (db *DB) CacheGet(ctx context.Context, queryHash string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := db.pool.QueryRow(ctx,
		`SELECT query_hash, session_id, expires_at, created_at
		 FROM query_cache WHERE query_hash = $1 AND expires_at > $2`,
		queryHash, db.clock.Now(),
	).Scan(&entry.QueryHash, &entry.SessionID, &entry.ExpiresAt, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: cache get: %w", err)
	}
	return &entry, nil
}

// CachePut stores an entry with put-if-absent semantics: the first
// writer wins while its entry is live, so racing sessions never
// overwrite an earlier accepted answer. An expired row no longer
// protects its hash and is replaced in place by the next writer.
func (db *DB) CachePut(ctx context.Context, entry *models.CacheEntry) error {
	entry.CreatedAt = db.clock.Now()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO query_cache (query_hash, session_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (query_hash) DO UPDATE
		 SET session_id = EXCLUDED.session_id,
		     expires_at = EXCLUDED.expires_at,
		     created_at = EXCLUDED.created_at
		 WHERE query_cache.expires_at <= EXCLUDED.created_at`,
		entry.QueryHash, entry.SessionID, entry.ExpiresAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: cache put: %w", err)
	}
	return nil
}

// PurgeExpiredCache removes expired cache rows. Called by the worker
// pool's periodic background scan.
func (db *DB) PurgeExpiredCache(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM query_cache WHERE expires_at <= $1`, db.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("storage: purge cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
