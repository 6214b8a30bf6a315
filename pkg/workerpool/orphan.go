package workerpool

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/nl2schema/pkg/persist"
)

// runOrphanDetection periodically reclaims runs stuck in_progress past
// OrphanThreshold — a pod that died mid-run without ever reaching a
// terminal status. Adapted from the teacher's queue.orphan.go, simplified:
// persist.Store exposes no heartbeat column to refresh, so staleness is
// judged off CreatedAt rather than a periodically bumped LastInteraction.
func (p *Pool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scanForOrphans(ctx)
		}
	}
}

func (p *Pool) scanForOrphans(ctx context.Context) {
	threshold := time.Now().Add(-p.config.OrphanThreshold)
	result, err := p.store.ListRuns(ctx, persist.RunFilters{
		Status:        "in_progress",
		CreatedBefore: &threshold,
		Limit:         100,
	})
	if err != nil {
		slog.Error("orphan scan: listing in-progress runs failed", "error", err)
		return
	}

	recovered := 0
	for _, run := range result.Runs {
		if err := p.store.UpdateRunStatus(ctx, run.ID, "pending", ""); err != nil {
			slog.Error("orphan scan: requeue failed", "run_id", run.ID, "error", err)
			continue
		}
		slog.Warn("orphan scan: requeued stuck run", "run_id", run.ID, "pod_id", run.PodID)
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()
}
