package persist

import (
	"context"
	"time"
)

// HealthStatus reports store connectivity and pool statistics, adapted from
// the teacher's pkg/database.HealthStatus.
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    int64         `json:"response_time_ms"`
	TotalConns      int32         `json:"total_conns"`
	AcquiredConns   int32         `json:"acquired_conns"`
	IdleConns       int32         `json:"idle_conns"`
	MaxConns        int32         `json:"max_conns"`
	AcquireCount    int64         `json:"acquire_count"`
	EmptyAcquireCount int64       `json:"empty_acquire_count"`
}

// Health pings the pool and reports its current statistics.
func (s *PGStore) Health(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start).Milliseconds()}, err
	}

	stat := s.pool.Stat()
	return HealthStatus{
		Status:            "healthy",
		ResponseTime:      time.Since(start).Milliseconds(),
		TotalConns:        stat.TotalConns(),
		AcquiredConns:     stat.AcquiredConns(),
		IdleConns:         stat.IdleConns(),
		MaxConns:          stat.MaxConns(),
		AcquireCount:      stat.AcquireCount(),
		EmptyAcquireCount: stat.EmptyAcquireCount(),
	}, nil
}
