package persist

import (
	"context"

	"github.com/codeready-toolchain/nl2schema/pkg/pipelinelog"
)

// Sink is the durable pipelinelog.Sink implementation: every recorded event
// becomes one row in pipeline_events, sequence-numbered per run by the
// store itself. This is the Postgres half of the dual sink the teacher's
// TimelineEvent table plays for agent executions — opaque to the engine,
// which only ever sees the pipelinelog.Sink interface.
type Sink struct {
	Store Store
}

// NewSink wraps store as a pipelinelog.Sink.
func NewSink(store Store) *Sink {
	return &Sink{Store: store}
}

func (s *Sink) Record(ctx context.Context, e pipelinelog.Event) error {
	_, err := s.Store.RecordEvent(ctx, PipelineEvent{
		RunID:       e.RunID,
		PhaseNumber: e.Phase,
		StepID:      e.StepID,
		Kind:        e.Kind,
		Payload:     e.Payload,
	})
	return err
}

var _ pipelinelog.Sink = (*Sink)(nil)
