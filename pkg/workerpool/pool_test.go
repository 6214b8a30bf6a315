package workerpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolRegisterUnregisterCancelRun(t *testing.T) {
	cfg := testQueueConfig()
	p := New("pod-1", nil, cfg, nil)

	cancelled := false
	_, cancel := context.WithCancel(context.Background())
	p.RegisterRun("run-1", func() { cancelled = true; cancel() })

	assert.True(t, p.CancelRun("run-1"))
	assert.True(t, cancelled)

	p.UnregisterRun("run-1")
	assert.False(t, p.CancelRun("run-1"), "cancel of unregistered run should report not found")
}

func TestPoolHealthReflectsActiveRuns(t *testing.T) {
	cfg := testQueueConfig()
	p := New("pod-1", nil, cfg, nil)
	_, cancel := context.WithCancel(context.Background())
	p.RegisterRun("run-1", cancel)

	health := p.Health(context.Background())
	assert.Equal(t, 1, health.ActiveRuns)
	assert.Equal(t, "pod-1", health.PodID)
	assert.Equal(t, cfg.MaxConcurrentRuns, health.MaxConcurrent)
}
