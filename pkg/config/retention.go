package config

import "time"

// RetentionConfig controls data retention and cleanup behavior for
// persist.PGStore-backed runs.
type RetentionConfig struct {
	// RunRetentionDays is how many days to keep completed runs before
	// soft-deleting them (setting pipeline_runs.deleted_at).
	RunRetentionDays int `yaml:"run_retention_days"`

	// EventTTL is the maximum age of orphaned pipeline_events rows before
	// deletion. Per-run cleanup handles the normal case; this is a safety net.
	EventTTL time.Duration `yaml:"event_ttl"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		RunRetentionDays: 365,
		EventTTL:         1 * time.Hour,
		CleanupInterval:  12 * time.Hour,
	}
}
