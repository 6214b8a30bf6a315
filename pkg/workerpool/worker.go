package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/nl2schema/pkg/config"
	"github.com/codeready-toolchain/nl2schema/pkg/engine"
	"github.com/codeready-toolchain/nl2schema/pkg/persist"
)

// ErrNoRunsAvailable signals the queue has nothing pending right now.
var ErrNoRunsAvailable = errors.New("workerpool: no runs available")

// ErrAtCapacity signals the concurrent-run limit across all pods is already
// met.
var ErrAtCapacity = errors.New("workerpool: at capacity")

// RunRegistry is the subset of Pool used by Worker for cancellation
// registration.
type RunRegistry interface {
	RegisterRun(runID string, cancel context.CancelFunc)
	UnregisterRun(runID string)
}

// Worker polls for and processes pipeline runs, one at a time.
type Worker struct {
	id     string
	podID  string
	store  persist.Store
	config *config.QueueConfig
	engine *engine.Engine
	pool   RunRegistry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  string
	runsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new worker.
func NewWorker(id, podID string, store persist.Store, cfg *config.QueueConfig, eng *engine.Engine, pool RunRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		store:        store,
		config:       cfg,
		engine:       eng,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentRunID:  w.currentRunID,
		RunsProcessed: w.runsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoRunsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing run", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	active, err := w.store.ListRuns(ctx, persist.RunFilters{Status: "in_progress", Limit: 1})
	if err != nil {
		return fmt.Errorf("counting active runs: %w", err)
	}
	if active.TotalCount >= w.config.MaxConcurrentRuns {
		return ErrAtCapacity
	}

	run, err := w.store.ClaimNextPendingRun(ctx, w.podID)
	if err != nil {
		return fmt.Errorf("claiming run: %w", err)
	}
	if run == nil {
		return ErrNoRunsAvailable
	}

	log := slog.With("run_id", run.ID, "worker_id", w.id)
	log.Info("run claimed")

	w.setStatus(WorkerStatusWorking, run.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	runCtx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancel()

	w.pool.RegisterRun(run.ID, cancel)
	defer w.pool.UnregisterRun(run.ID)

	state := w.engine.SeedState(run.NLDescription)
	state.Phase = run.CurrentPhase
	if state.Phase < 1 {
		state.Phase = 1
	}

	runErr := w.engine.RunAll(runCtx, run.ID, state)

	status := "completed"
	errMsg := ""
	switch {
	case runErr == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		status = "failed"
		errMsg = fmt.Sprintf("run timed out after %v", w.config.RunTimeout)
	case errors.Is(runCtx.Err(), context.Canceled):
		status = "cancelled"
		errMsg = "run was cancelled"
	default:
		status = "failed"
		errMsg = runErr.Error()
	}

	if err := w.store.UpdateRunStatus(context.Background(), run.ID, status, errMsg); err != nil {
		log.Error("failed to update terminal run status", "error", err)
		return err
	}

	if status == "completed" {
		if _, err := w.store.RecordEvent(context.Background(), persist.PipelineEvent{
			RunID:       run.ID,
			PhaseNumber: state.Phase,
			StepID:      "result",
			Kind:        "result",
			Payload:     state,
		}); err != nil {
			log.Error("failed to record final compiled state", "error", err)
		}
	} else {
		if _, err := w.store.RecordEvent(context.Background(), persist.PipelineEvent{
			RunID:       run.ID,
			PhaseNumber: state.Phase,
			StepID:      "result",
			Kind:        "phase_failed",
			Payload:     errMsg,
		}); err != nil {
			log.Error("failed to record terminal failure event", "error", err)
		}
	}

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()

	log.Info("run processing complete", "status", status)
	return nil
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
