package config

import "time"

// ServerConfig holds resolved HTTP API server configuration — the successor
// to the teacher's system.go (which held GitHub/runbook/dashboard settings
// that have no counterpart in this domain; this engine exposes only the
// submit/get/stream endpoints of cmd/compilerd).
type ServerConfig struct {
	ListenAddr      string        // e.g. ":8080"
	ReadTimeout     time.Duration // default: 10s
	WriteTimeout    time.Duration // default: 0 (event streams are long-lived)
	ShutdownTimeout time.Duration // default: 15s
}
