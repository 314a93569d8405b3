package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/veriweb/veriweb/pkg/config"
	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/storage"
)

// Worker is a single queue worker that polls for and processes
// sessions.
type Worker struct {
	id     string
	podID  string
	store  storage.Store
	config *config.QueueConfig
	runner SessionRunner

	sessionTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu                sync.RWMutex
	status            WorkerStatus
	currentSessionID  string
	sessionsProcessed int
	lastActivity      time.Time
}

// NewWorker creates a queue worker. sessionTimeout is the per-session
// wall-clock budget.
func NewWorker(id, podID string, store storage.Store, cfg *config.QueueConfig, runner SessionRunner, sessionTimeout time.Duration) *Worker {
	return &Worker{
		id:             id,
		podID:          podID,
		store:          store,
		config:         cfg,
		runner:         runner,
		sessionTimeout: sessionTimeout,
		stopCh:         make(chan struct{}),
		status:         WorkerStatusIdle,
		lastActivity:   time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. The
// in-flight session, if any, completes first. Safe to call multiple
// times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            w.status,
		CurrentSessionID:  w.currentSessionID,
		SessionsProcessed: w.sessionsProcessed,
		LastActivity:      w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, storage.ErrNoSessionsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing session", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the next queued session and drives it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	session, err := w.store.ClaimNextSession(ctx, w.podID)
	if err != nil {
		return err
	}

	log := slog.With("session_id", session.ID, "worker_id", w.id)
	log.Info("Session claimed")

	w.setStatus(WorkerStatusWorking, session.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	sessionCtx, cancelSession := context.WithTimeout(ctx, w.sessionTimeout)
	defer cancelSession()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(sessionCtx)
	go w.runHeartbeat(heartbeatCtx, session.ID)

	runErr := w.runSession(sessionCtx, session.ID)
	cancelHeartbeat()

	if runErr != nil {
		log.Warn("Session run returned error", "error", runErr)
	}

	// The planner finalizes the session itself; this is the backstop
	// for panics and paths that never reached a terminal status.
	w.ensureTerminal(context.WithoutCancel(ctx), log, session.ID)

	w.mu.Lock()
	w.sessionsProcessed++
	w.mu.Unlock()

	log.Info("Session processing complete")
	return nil
}

// runSession invokes the planner with panic recovery. A panicking
// session must not take its worker down.
func (w *Worker) runSession(ctx context.Context, sessionID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Session panicked",
				"session_id", sessionID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("session panicked: %v", r)
		}
	}()
	return w.runner.Run(ctx, sessionID)
}

// ensureTerminal forces FAILED on a session left non-terminal.
func (w *Worker) ensureTerminal(ctx context.Context, log *slog.Logger, sessionID string) {
	session, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Error("Failed to re-read session after run", "error", err)
		return
	}
	if session.Status.IsTerminal() {
		return
	}
	log.Warn("Session left non-terminal, forcing FAILED", "status", session.Status)
	if err := w.store.UpdateSessionStatus(ctx, sessionID, models.StatusFailed); err != nil {
		log.Error("Failed to force session FAILED", "error", err)
	}
}

// runHeartbeat periodically refreshes last_heartbeat_at so orphan
// detection on other pods leaves this session alone.
func (w *Worker) runHeartbeat(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, sessionID); err != nil {
				slog.Warn("Heartbeat update failed", "session_id", sessionID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentSessionID = sessionID
	w.lastActivity = time.Now()
}
