package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/nl2schema/pkg/config"
	"github.com/stretchr/testify/assert"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		MaxConcurrentRuns:       5,
		PollInterval:            50 * time.Millisecond,
		PollIntervalJitter:      10 * time.Millisecond,
		RunTimeout:              time.Minute,
		GracefulShutdownTimeout: time.Minute,
		OrphanDetectionInterval: time.Minute,
		OrphanThreshold:         5 * time.Minute,
	}
}

type noopRegistry struct{}

func (noopRegistry) RegisterRun(string, context.CancelFunc) {}
func (noopRegistry) UnregisterRun(string)                   {}

func TestWorkerPollIntervalStaysWithinJitterBounds(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("w-1", "pod-1", nil, cfg, nil, noopRegistry{})

	for i := 0; i < 50; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, cfg.PollInterval-cfg.PollIntervalJitter)
		assert.LessOrEqual(t, d, cfg.PollInterval+cfg.PollIntervalJitter)
	}
}

func TestWorkerPollIntervalNoJitterReturnsBase(t *testing.T) {
	cfg := testQueueConfig()
	cfg.PollIntervalJitter = 0
	w := NewWorker("w-1", "pod-1", nil, cfg, nil, noopRegistry{})
	assert.Equal(t, cfg.PollInterval, w.pollInterval())
}

func TestWorkerHealthReflectsStatus(t *testing.T) {
	w := NewWorker("w-1", "pod-1", nil, testQueueConfig(), nil, noopRegistry{})
	w.setStatus(WorkerStatusWorking, "run-1")

	h := w.Health()
	assert.Equal(t, WorkerStatusWorking, h.Status)
	assert.Equal(t, "run-1", h.CurrentRunID)

	w.setStatus(WorkerStatusIdle, "")
	assert.Equal(t, WorkerStatusIdle, w.Health().Status)
}
