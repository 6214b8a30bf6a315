// Package pipelinelog defines the consumed Pipeline Logger collaborator
// (§6.1): an append-only sink for per-step raw outputs, opaque to the
// engine. The durable, Postgres-backed sink lives in pkg/persist (it writes
// to the PipelineEvent table); this package also provides a dependency-free
// sink for tests and CLI runs without a database, grounded on the
// teacher's use of log/slog throughout pkg/services.
package pipelinelog

import (
	"context"
	"log/slog"
)

// Event is one opaque record: a progress or phase-transition notice, a
// warning, or an error, tagged with the run and step it belongs to.
type Event struct {
	RunID   string
	Phase   int
	StepID  string
	Kind    string // "progress" | "transition" | "warning" | "error"
	Payload any
}

// Sink is the append-only contract of §6.1.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// SlogSink writes events through log/slog — the teacher's own ambient
// logging choice, used unchanged here for the zero-dependency case.
type SlogSink struct {
	Logger *slog.Logger
}

// NewSlogSink wraps slog.Default() if logger is nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{Logger: logger}
}

func (s *SlogSink) Record(_ context.Context, e Event) error {
	s.Logger.Info("pipeline event",
		"run_id", e.RunID, "phase", e.Phase, "step_id", e.StepID, "kind", e.Kind, "payload", e.Payload)
	return nil
}

// Multi fans one event out to several sinks, stopping at the first error.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) error {
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
