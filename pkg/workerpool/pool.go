// Package workerpool pulls submitted compilation runs off persist.Store's
// pending queue and drives each one through pkg/engine.Engine, bounded by
// config.QueueConfig. Adapted from the teacher's pkg/queue (pool.go +
// worker.go): the same pod-scoped worker-goroutine pool, poll-with-jitter
// loop, and run-cancellation registry, now claiming PipelineRuns via
// persist.Store.ClaimNextPendingRun instead of an ent query, and executing
// pkg/engine.Engine.RunAll instead of the teacher's per-stage
// SessionExecutor. The teacher's chat_executor.go, executor_stub.go, and
// Slack/MCP-aware orphan notifications have no counterpart here (no chat,
// no tool calls, no Slack) and are dropped.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/nl2schema/pkg/config"
	"github.com/codeready-toolchain/nl2schema/pkg/engine"
	"github.com/codeready-toolchain/nl2schema/pkg/persist"
)

// Pool manages a pod-scoped pool of workers pulling pending runs.
type Pool struct {
	podID  string
	store  persist.Store
	config *config.QueueConfig
	engine *engine.Engine

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool

	orphans orphanState
}

type orphanState struct {
	mu               sync.Mutex
	lastScan         struct{ set bool }
	orphansRecovered int
}

// New creates a new worker pool.
func New(podID string, store persist.Store, cfg *config.QueueConfig, eng *engine.Engine) *Pool {
	return &Pool{
		podID:      podID,
		store:      store,
		config:     cfg,
		engine:     eng,
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		stopCh:     make(chan struct{}),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the orphan detection background task.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		w := NewWorker(workerID, p.podID, p.store, p.config, p.engine, p)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish. Workers
// finish their current run before exiting.
func (p *Pool) Stop() {
	slog.Info("stopping worker pool gracefully")

	active := p.activeRunIDs()
	if len(active) > 0 {
		slog.Info("waiting for active runs to complete", "count", len(active), "run_ids", active)
	}

	for _, w := range p.workers {
		w.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("worker pool stopped gracefully")
}

// RegisterRun stores a cancel function for manual cancellation.
func (p *Pool) RegisterRun(runID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRuns[runID] = cancel
}

// UnregisterRun removes the cancel function once processing ends.
func (p *Pool) UnregisterRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRuns, runID)
}

// CancelRun triggers context cancellation for a run on this pod. Returns
// true if the run was found and cancelled on this pod.
func (p *Pool) CancelRun(runID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeRuns[runID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health snapshot of the pool.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	active := len(p.activeRunIDs())

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		stats := w.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	p.orphans.mu.Lock()
	orphansRecovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	return &PoolHealth{
		IsHealthy:        len(p.workers) > 0 && active <= p.config.MaxConcurrentRuns,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveRuns:       active,
		MaxConcurrent:    p.config.MaxConcurrentRuns,
		WorkerStats:      workerStats,
		OrphansRecovered: orphansRecovered,
	}
}

func (p *Pool) activeRunIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeRuns))
	for id := range p.activeRuns {
		ids = append(ids, id)
	}
	return ids
}
