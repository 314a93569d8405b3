package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/storage"
	"github.com/veriweb/veriweb/test/util"
)

// The tests below run against a real PostgreSQL instance (testcontainer
// or CI service container) and exercise the SQL paths the MemoryStore
// only mirrors: SKIP LOCKED claiming, unique constraints, and the
// transactional answer write.

func setupDB(t *testing.T) *storage.DB {
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}
	return storage.NewDB(util.SetupTestPool(t))
}

func TestDBSessionLifecycle(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "When did Voyager 1 launch?")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInit, s.Status)

	claimed, err := db.ClaimNextSession(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, claimed.ID)

	_, err = db.ClaimNextSession(ctx, "pod-2")
	assert.ErrorIs(t, err, storage.ErrNoSessionsAvailable)

	require.NoError(t, db.UpdateSessionStatus(ctx, s.ID, models.StatusResearch))
	require.NoError(t, db.Heartbeat(ctx, s.ID))
	require.NoError(t, db.UpdateSessionStatus(ctx, s.ID, models.StatusDone))

	err = db.UpdateSessionStatus(ctx, s.ID, models.StatusFailed)
	assert.ErrorIs(t, err, storage.ErrTerminalSession)
}

func TestDBTraceUniquePerAttempt(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "question")
	require.NoError(t, err)

	trace := models.PlannerTrace{
		SessionID:    s.ID,
		AttemptNum:   1,
		PlannerState: models.StatusVerify,
		Strategy:     models.StrategyVerbatim,
		NumDocs:      5,
		Decision:     models.DecisionAccept,
	}
	require.NoError(t, db.AppendPlannerTrace(ctx, &trace))

	dup := trace
	err = db.AppendPlannerTrace(ctx, &dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateTrace)
}

func TestDBAnswerAndEvidenceRoundTrip(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, db.UpdateSessionStatus(ctx, s.ID, models.StatusDone))

	snapshot := models.AnswerSnapshot{
		SessionID:        s.ID,
		AnswerText:       "Voyager 1 launched in 1977.",
		ConfidenceLevel:  models.ConfidenceHigh,
		ConfidenceReason: "claims verified, no conflicts",
	}
	evidence := []models.Evidence{
		{
			ClaimText:   "Voyager 1 launched in 1977.",
			Status:      models.ClaimVerified,
			SourceURLs:  []string{"https://nasa.gov/v1", "https://britannica.com/v1"},
			DomainCount: 2,
		},
	}
	require.NoError(t, db.WriteAnswer(ctx, &snapshot, evidence))

	got, gotEvidence, err := db.ReadResult(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snapshot.AnswerText, got.AnswerText)
	assert.Equal(t, models.ConfidenceHigh, got.ConfidenceLevel)
	require.Len(t, gotEvidence, 1)
	assert.Equal(t, []string{"https://nasa.gov/v1", "https://britannica.com/v1"}, gotEvidence[0].SourceURLs)
}

func TestDBReadResultNotReady(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "question")
	require.NoError(t, err)

	_, _, err = db.ReadResult(ctx, s.ID)
	assert.ErrorIs(t, err, storage.ErrNotReady)

	_, _, err = db.ReadResult(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDBCachePutIfAbsent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "question")
	require.NoError(t, err)

	entry := models.CacheEntry{
		QueryHash: "deadbeef",
		SessionID: s.ID,
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, db.CachePut(ctx, &entry))

	other, err := db.CreateSession(ctx, "other question")
	require.NoError(t, err)
	second := models.CacheEntry{
		QueryHash: "deadbeef",
		SessionID: other.ID,
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, db.CachePut(ctx, &second))

	got, err := db.CacheGet(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.SessionID)

	_, err = db.CacheGet(ctx, "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDBCacheGetSkipsExpired(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, db.CachePut(ctx, &models.CacheEntry{
		QueryHash: "expired",
		SessionID: s.ID,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}))

	_, err = db.CacheGet(ctx, "expired")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDBCachePutReplacesExpiredEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}
	clock := storage.NewFakeClock(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC))
	db := storage.NewDBWithClock(util.SetupTestPool(t), clock)
	ctx := context.Background()

	first, err := db.CreateSession(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, db.CachePut(ctx, &models.CacheEntry{
		QueryHash: "rollover",
		SessionID: first.ID,
		ExpiresAt: clock.Now().Add(24 * time.Hour),
	}))

	clock.Advance(24*time.Hour + time.Second)
	_, err = db.CacheGet(ctx, "rollover")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// The stale row no longer guards its hash; a later accepted
	// answer takes it over.
	second, err := db.CreateSession(ctx, "question again")
	require.NoError(t, err)
	require.NoError(t, db.CachePut(ctx, &models.CacheEntry{
		QueryHash: "rollover",
		SessionID: second.ID,
		ExpiresAt: clock.Now().Add(24 * time.Hour),
	}))

	got, err := db.CacheGet(ctx, "rollover")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.SessionID)
}

func TestDBPurgeExpiredCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}
	clock := storage.NewFakeClock(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC))
	db := storage.NewDBWithClock(util.SetupTestPool(t), clock)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, db.CachePut(ctx, &models.CacheEntry{
		QueryHash: "stale",
		SessionID: s.ID,
		ExpiresAt: clock.Now().Add(time.Hour),
	}))
	require.NoError(t, db.CachePut(ctx, &models.CacheEntry{
		QueryHash: "fresh",
		SessionID: s.ID,
		ExpiresAt: clock.Now().Add(48 * time.Hour),
	}))

	clock.Advance(24 * time.Hour)
	purged, err := db.PurgeExpiredCache(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	_, err = db.CacheGet(ctx, "stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	got, err := db.CacheGet(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.SessionID)
}

func TestDBFailOrphanedSessions(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "question")
	require.NoError(t, err)
	_, err = db.ClaimNextSession(ctx, "pod-1")
	require.NoError(t, err)

	// Heartbeat is fresh, nothing to recover.
	recovered, err := db.FailOrphanedSessions(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	// A zero stale window treats any claimed session as orphaned.
	recovered, err = db.FailOrphanedSessions(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}
