package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultQueueConfig(t *testing.T) {
	q := DefaultQueueConfig()
	assert.Equal(t, 5, q.WorkerCount)
	assert.Equal(t, 5, q.MaxConcurrentRuns)
	assert.Equal(t, time.Second, q.PollInterval)
	assert.Less(t, q.PollIntervalJitter, q.PollInterval)
	assert.Equal(t, 15*time.Minute, q.RunTimeout)
}

func TestDefaultRetentionConfig(t *testing.T) {
	r := DefaultRetentionConfig()
	assert.Equal(t, 365, r.RunRetentionDays)
	assert.Greater(t, int64(r.EventTTL), int64(0))
	assert.Greater(t, int64(r.CleanupInterval), int64(0))
}
