// Package engine implements the Master Orchestrator (C6): it sequences the
// nine phase subgraphs built by phases/phase1..phase9, running a phase
// gate after each phase (terminal on failure, §4.5.A) and the transition
// validators before phases 2+ (non-fatal, §4.5.B), plus the frozen-schema
// immutability check before phases 5+ (terminal on an unrecorded post-
// freeze mutation, §4.5.C), and the list-duplication detector after each
// phase's gate (§4.4/§8 invariant 1). Grounded on the teacher's chain executor
// (pkg/queue/executor.go's RealSessionExecutor.Execute stage loop):
// sequential stage advance, a pluggable logger sink per stage, run-level
// cancellation via ctx.
package engine

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/nl2schema/pkg/convergence"
	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/pipelinelog"
	"github.com/codeready-toolchain/nl2schema/phases/common"
	"github.com/codeready-toolchain/nl2schema/phases/phase1"
	"github.com/codeready-toolchain/nl2schema/phases/phase2"
	"github.com/codeready-toolchain/nl2schema/phases/phase3"
	"github.com/codeready-toolchain/nl2schema/phases/phase4"
	"github.com/codeready-toolchain/nl2schema/phases/phase5"
	"github.com/codeready-toolchain/nl2schema/phases/phase6"
	"github.com/codeready-toolchain/nl2schema/phases/phase7"
	"github.com/codeready-toolchain/nl2schema/phases/phase8"
	"github.com/codeready-toolchain/nl2schema/phases/phase9"
)

// Engine owns the compiled phase graphs and drives a run's state through
// them in order.
type Engine struct {
	deps   common.Deps
	sink   pipelinelog.Sink
	phases []phasegraph.Graph
}

// New compiles all nine phase subgraphs against deps. sink may be nil, in
// which case events are dropped (no-op sink).
func New(deps common.Deps, sink pipelinelog.Sink) *Engine {
	if sink == nil {
		sink = pipelinelog.Multi{}
	}
	return &Engine{
		deps: deps,
		sink: sink,
		phases: []phasegraph.Graph{
			phase1.Build(deps),
			phase2.Build(deps),
			phase3.Build(deps),
			phase4.Build(deps),
			phase5.Build(deps),
			phase6.Build(deps),
			phase7.Build(deps),
			phase8.Build(deps),
			phase9.Build(deps),
		},
	}
}

// SeedState creates a fresh run state from a natural-language description
// (§3.3).
func (e *Engine) SeedState(nlDescription string) *pipeline.State {
	return pipeline.Seed(nlDescription)
}

// RunAll drives s through all nine phases in order.
func (e *Engine) RunAll(ctx context.Context, runID string, s *pipeline.State) error {
	return e.RunUpTo(ctx, runID, s, 9)
}

// RunUpTo drives s through phases 1..maxPhase, stopping (successfully) once
// maxPhase completes.
func (e *Engine) RunUpTo(ctx context.Context, runID string, s *pipeline.State, maxPhase int) error {
	for p := s.Phase; p <= maxPhase && p <= 9; p++ {
		if err := e.RunPhase(ctx, runID, s); err != nil {
			return err
		}
	}
	return nil
}

// RunPhase runs exactly the phase s.Phase currently points to, then
// advances s.Phase on success (the phase graph itself stamps s.Phase to
// its own number; RunPhase here validates before/after it).
func (e *Engine) RunPhase(ctx context.Context, runID string, s *pipeline.State) error {
	p := s.Phase
	if p < 1 || p > 9 {
		return fmt.Errorf("engine: phase %d out of range", p)
	}

	if p >= 2 {
		for _, w := range gate.ValidateConsistency(s) {
			s.Warnings = append(s.Warnings, w)
			e.record(ctx, runID, p, "transition", w)
		}
	}
	if p > 4 {
		warnings, err := gate.ValidateFrozenImmutability(s)
		s.Warnings = append(s.Warnings, warnings...)
		for _, w := range warnings {
			e.record(ctx, runID, p, "transition", w)
		}
		if err != nil {
			e.record(ctx, runID, p, "error", err.Error())
			return fmt.Errorf("engine: phase %d: %w", p, err)
		}
	}

	e.record(ctx, runID, p, "progress", "phase started")
	g := e.phases[p-1]
	if err := g.Run(ctx, s); err != nil {
		e.record(ctx, runID, p, "error", err.Error())
		return fmt.Errorf("engine: phase %d: substep failed: %w", p, err)
	}

	if err := gate.Run(p, s); err != nil {
		e.record(ctx, runID, p, "error", err.Error())
		return fmt.Errorf("engine: phase %d: gate failed: %w", p, err)
	}

	for _, w := range convergence.CheckDuplication(s) {
		s.Warnings = append(s.Warnings, w)
		e.record(ctx, runID, p, "warning", w)
	}

	e.record(ctx, runID, p, "progress", "phase completed")
	s.Phase = p + 1
	return nil
}

func (e *Engine) record(ctx context.Context, runID string, phase int, kind, payload string) {
	_ = e.sink.Record(ctx, pipelinelog.Event{RunID: runID, Phase: phase, Kind: kind, Payload: payload})
}

// StreamEvent is one update emitted on StreamAll's channel.
type StreamEvent struct {
	Phase int
	Err   error
	Done  bool
}

// StreamAll runs all nine phases, emitting a StreamEvent after each phase
// completes (or fails) on the returned channel, which is closed when the
// run ends. The caller retains s and can inspect it between events.
func (e *Engine) StreamAll(ctx context.Context, runID string, s *pipeline.State) <-chan StreamEvent {
	out := make(chan StreamEvent, 1)
	go func() {
		defer close(out)
		for s.Phase <= 9 {
			phase := s.Phase
			err := e.RunPhase(ctx, runID, s)
			if err != nil {
				out <- StreamEvent{Phase: phase, Err: err}
				return
			}
			out <- StreamEvent{Phase: phase}
			select {
			case <-ctx.Done():
				out <- StreamEvent{Err: ctx.Err()}
				return
			default:
			}
		}
		out <- StreamEvent{Done: true}
	}()
	return out
}
