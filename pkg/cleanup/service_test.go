package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/nl2schema/pkg/config"
	"github.com/codeready-toolchain/nl2schema/pkg/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements persist.Store with just enough behavior for the
// cleanup service's two retention calls; every other method is unused by
// these tests and panics if reached, keeping the fake honest.
type fakeStore struct {
	persist.Store
	deletedRunsCalls      []int
	cleanedEventsCalls    []time.Duration
	deleteOldRunsResult   int
	cleanupEventsResult   int
}

func (f *fakeStore) DeleteOldRuns(_ context.Context, olderThanDays int) (int, error) {
	f.deletedRunsCalls = append(f.deletedRunsCalls, olderThanDays)
	return f.deleteOldRunsResult, nil
}

func (f *fakeStore) CleanupOrphanedEvents(_ context.Context, ttl time.Duration) (int, error) {
	f.cleanedEventsCalls = append(f.cleanedEventsCalls, ttl)
	return f.cleanupEventsResult, nil
}

func TestService_RunAllInvokesBothRetentionOperations(t *testing.T) {
	store := &fakeStore{deleteOldRunsResult: 3, cleanupEventsResult: 7}
	cfg := &config.RetentionConfig{
		RunRetentionDays: 365,
		EventTTL:         1 * time.Hour,
		CleanupInterval:  1 * time.Hour,
	}
	svc := NewService(cfg, store)
	svc.runAll(context.Background())

	require.Len(t, store.deletedRunsCalls, 1)
	assert.Equal(t, 365, store.deletedRunsCalls[0])
	require.Len(t, store.cleanedEventsCalls, 1)
	assert.Equal(t, 1*time.Hour, store.cleanedEventsCalls[0])
}

func TestService_StartStopRunsOnTicker(t *testing.T) {
	store := &fakeStore{}
	cfg := &config.RetentionConfig{
		RunRetentionDays: 365,
		EventTTL:         1 * time.Hour,
		CleanupInterval:  10 * time.Millisecond,
	}
	svc := NewService(cfg, store)
	svc.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	svc.Stop()

	assert.GreaterOrEqual(t, len(store.deletedRunsCalls), 2, "expected initial run plus at least one ticker fire")
}
