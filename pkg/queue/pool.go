package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veriweb/veriweb/pkg/config"
	"github.com/veriweb/veriweb/pkg/storage"
)

// orphanScanInterval is how often a pool scans for sessions whose
// owning pod stopped heartbeating.
const orphanScanInterval = 30 * time.Second

// orphanStaleMultiplier times the heartbeat interval gives the
// staleness cutoff. Generous so slow-but-alive pods are not killed.
const orphanStaleMultiplier = 6

// WorkerPool manages a pool of queue workers plus the background
// orphan scan.
type WorkerPool struct {
	podID          string
	store          storage.Store
	config         *config.QueueConfig
	runner         SessionRunner
	sessionTimeout time.Duration
	workers        []*Worker
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
	started        bool

	// Orphan detection state
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// NewWorkerPool creates a worker pool. sessionTimeout is the
// per-session wall-clock budget enforced by each worker.
func NewWorkerPool(podID string, store storage.Store, cfg *config.QueueConfig, runner SessionRunner, sessionTimeout time.Duration) *WorkerPool {
	return &WorkerPool{
		podID:          podID,
		store:          store,
		config:         cfg,
		runner:         runner,
		sessionTimeout: sessionTimeout,
		workers:        make([]*Worker, 0, cfg.WorkerCount),
		stopCh:         make(chan struct{}),
	}
}

// Start spawns worker goroutines and the orphan detection background
// task. Safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.store, p.config, p.runner, p.sessionTimeout)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current sessions before exiting.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// runOrphanDetection periodically fails sessions claimed by pods that
// stopped heartbeating. Statuses never regress, so orphans cannot be
// requeued.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(orphanScanInterval)
	defer ticker.Stop()

	staleAfter := orphanStaleMultiplier * p.config.HeartbeatInterval

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := p.store.FailOrphanedSessions(ctx, staleAfter)
			if err != nil {
				slog.Error("Orphan scan failed", "pod_id", p.podID, "error", err)
				continue
			}
			if recovered > 0 {
				slog.Warn("Recovered orphaned sessions", "count", recovered)
			}
			if purged, err := p.store.PurgeExpiredCache(ctx); err != nil {
				slog.Error("Cache purge failed", "pod_id", p.podID, "error", err)
			} else if purged > 0 {
				slog.Info("Purged expired cache entries", "count", purged)
			}
			p.mu.Lock()
			p.lastOrphanScan = time.Now()
			p.orphansRecovered += recovered
			p.mu.Unlock()
		}
	}
}

// Health returns the pool's health snapshot.
func (p *WorkerPool) Health() *PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	p.mu.Lock()
	lastOrphanScan := p.lastOrphanScan
	orphansRecovered := p.orphansRecovered
	p.mu.Unlock()

	return &PoolHealth{
		IsHealthy:        len(p.workers) > 0,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		WorkerStats:      workerStats,
		LastOrphanScan:   lastOrphanScan,
		OrphansRecovered: orphansRecovered,
	}
}
