package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veriweb/veriweb/pkg/models"
)

// MemoryStore is an in-memory Store used by unit tests and local
// experiments. It mirrors the PostgreSQL implementation's semantics:
// monotonic status updates, unique (session, attempt) traces, atomic
// answer+evidence writes, and put-if-absent cache entries.
type MemoryStore struct {
	mu       sync.Mutex
	clock    Clock
	sessions map[string]*models.QuerySession
	traces   map[string][]models.PlannerTrace
	logs     map[string][]models.SearchLog
	answers  map[string]*models.AnswerSnapshot
	evidence map[string][]models.Evidence
	cache    map[string]*models.CacheEntry
	nextID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(SystemClock{})
}

// NewMemoryStoreWithClock creates a store with an injected clock.
func NewMemoryStoreWithClock(clock Clock) *MemoryStore {
	return &MemoryStore{
		clock:    clock,
		sessions: make(map[string]*models.QuerySession),
		traces:   make(map[string][]models.PlannerTrace),
		logs:     make(map[string][]models.SearchLog),
		answers:  make(map[string]*models.AnswerSnapshot),
		evidence: make(map[string][]models.Evidence),
		cache:    make(map[string]*models.CacheEntry),
	}
}

// CreateSession inserts a new session in INIT status.
func (m *MemoryStore) CreateSession(_ context.Context, question string) (*models.QuerySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	s := &models.QuerySession{
		ID:        uuid.NewString(),
		Question:  strings.TrimSpace(question),
		Status:    models.StatusInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[s.ID] = s
	out := *s
	return &out, nil
}

// GetSession returns a copy of the session.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*models.QuerySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s
	return &out, nil
}

// UpdateSessionStatus advances a session's status.
func (m *MemoryStore) UpdateSessionStatus(_ context.Context, sessionID string, status models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.Status.IsTerminal() {
		return ErrTerminalSession
	}
	s.Status = status
	s.UpdatedAt = m.clock.Now()
	return nil
}

// ClaimNextSession claims the oldest unclaimed INIT session.
func (m *MemoryStore) ClaimNextSession(_ context.Context, podID string) (*models.QuerySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *models.QuerySession
	for _, s := range m.sessions {
		if s.Status != models.StatusInit || s.PodID != nil {
			continue
		}
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	if oldest == nil {
		return nil, ErrNoSessionsAvailable
	}
	now := m.clock.Now()
	oldest.PodID = &podID
	oldest.StartedAt = &now
	oldest.LastHeartbeatAt = &now
	oldest.UpdatedAt = now
	out := *oldest
	return &out, nil
}

// Heartbeat refreshes last_heartbeat_at.
func (m *MemoryStore) Heartbeat(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	now := m.clock.Now()
	s.LastHeartbeatAt = &now
	return nil
}

// FailOrphanedSessions marks claimed non-terminal sessions with a
// stale heartbeat as FAILED.
func (m *MemoryStore) FailOrphanedSessions(_ context.Context, staleAfter time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-staleAfter)
	recovered := 0
	for _, s := range m.sessions {
		if s.Status.IsTerminal() || s.PodID == nil || s.LastHeartbeatAt == nil {
			continue
		}
		if s.LastHeartbeatAt.Before(cutoff) {
			s.Status = models.StatusFailed
			s.UpdatedAt = m.clock.Now()
			recovered++
		}
	}
	return recovered, nil
}

// AppendPlannerTrace writes one attempt row.
func (m *MemoryStore) AppendPlannerTrace(_ context.Context, trace *models.PlannerTrace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.traces[trace.SessionID] {
		if t.AttemptNum == trace.AttemptNum {
			return ErrDuplicateTrace
		}
	}
	m.nextID++
	trace.ID = m.nextID
	trace.CreatedAt = m.clock.Now()
	m.traces[trace.SessionID] = append(m.traces[trace.SessionID], *trace)
	return nil
}

// AppendSearchLog records one search invocation.
func (m *MemoryStore) AppendSearchLog(_ context.Context, log *models.SearchLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	log.ID = m.nextID
	log.CreatedAt = m.clock.Now()
	m.logs[log.SessionID] = append(m.logs[log.SessionID], *log)
	return nil
}

// WriteAnswer persists the snapshot and evidence together.
func (m *MemoryStore) WriteAnswer(_ context.Context, snapshot *models.AnswerSnapshot, evidence []models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot.CreatedAt = m.clock.Now()
	snap := *snapshot
	m.answers[snapshot.SessionID] = &snap
	m.appendEvidenceLocked(snapshot.SessionID, evidence)
	return nil
}

// WriteEvidence persists evidence without a snapshot.
func (m *MemoryStore) WriteEvidence(_ context.Context, sessionID string, evidence []models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendEvidenceLocked(sessionID, evidence)
	return nil
}

func (m *MemoryStore) appendEvidenceLocked(sessionID string, evidence []models.Evidence) {
	for _, ev := range evidence {
		m.nextID++
		ev.ID = m.nextID
		ev.SessionID = sessionID
		ev.CreatedAt = m.clock.Now()
		m.evidence[sessionID] = append(m.evidence[sessionID], ev)
	}
}

// ReadResult returns the snapshot and evidence of a terminal session.
func (m *MemoryStore) ReadResult(ctx context.Context, sessionID string) (*models.AnswerSnapshot, []models.Evidence, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	if !s.Status.IsTerminal() {
		m.mu.Unlock()
		return nil, nil, ErrNotReady
	}
	var snapshot *models.AnswerSnapshot
	if snap, ok := m.answers[sessionID]; ok {
		out := *snap
		snapshot = &out
	}
	m.mu.Unlock()

	evidence, err := m.ListEvidence(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return snapshot, evidence, nil
}

// ReadTrace returns traces and logs ordered by attempt.
func (m *MemoryStore) ReadTrace(_ context.Context, sessionID string) ([]models.PlannerTrace, []models.SearchLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, nil, ErrNotFound
	}
	traces := append([]models.PlannerTrace(nil), m.traces[sessionID]...)
	sort.Slice(traces, func(i, j int) bool { return traces[i].AttemptNum < traces[j].AttemptNum })
	logs := append([]models.SearchLog(nil), m.logs[sessionID]...)
	return traces, logs, nil
}

// ListEvidence returns a copy of the session's evidence.
func (m *MemoryStore) ListEvidence(_ context.Context, sessionID string) ([]models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Evidence(nil), m.evidence[sessionID]...), nil
}

// CacheGet returns the unexpired entry for a query hash.
func (m *MemoryStore) CacheGet(_ context.Context, queryHash string) (*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache[queryHash]
	if !ok || !entry.ExpiresAt.After(m.clock.Now()) {
		return nil, ErrNotFound
	}
	out := *entry
	return &out, nil
}

// CachePut stores an entry; the first writer for a key wins.
func (m *MemoryStore) CachePut(_ context.Context, entry *models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.cache[entry.QueryHash]; ok && existing.ExpiresAt.After(m.clock.Now()) {
		return nil
	}
	entry.CreatedAt = m.clock.Now()
	stored := *entry
	m.cache[entry.QueryHash] = &stored
	return nil
}

// PurgeExpiredCache removes expired cache entries.
func (m *MemoryStore) PurgeExpiredCache(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var purged int64
	for hash, entry := range m.cache {
		if !entry.ExpiresAt.After(now) {
			delete(m.cache, hash)
			purged++
		}
	}
	return purged, nil
}

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the frozen time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
