// Package phasegraph implements the Phase Subgraph Builder (C3): a small
// hand-rolled DAG/state-machine executor. No LangGraph equivalent exists in
// the Go ecosystem among the retrieved examples, so this executor is
// necessarily standard-library (§4.3) — it borrows its sequential-driver
// idiom from the teacher's chain executor (pkg/queue/executor.go's
// RealSessionExecutor.Execute stage loop) rather than a generic graph
// library.
package phasegraph

import (
	"context"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

// Node is one vertex of a compiled phase subgraph. Run mutates s via
// pipeline.Merge (never directly) and returns an error to abort the phase
// (§7 kind 1: substep exception aborts the phase).
type Node interface {
	Run(ctx context.Context, s *pipeline.State) error
	Name() string
}

// StepFunc is the signature every leaf substep.Adapter.Run already
// satisfies: produce an Update without side-effecting s.
type StepFunc func(ctx context.Context, s *pipeline.State) (pipeline.Update, error)

// FuncNode adapts a StepFunc (typically substep.Adapter.Run) into a Node by
// merging its Update into s immediately after it returns.
type FuncNode struct {
	ID string
	Fn StepFunc
}

func (n FuncNode) Name() string { return n.ID }

func (n FuncNode) Run(ctx context.Context, s *pipeline.State) error {
	u, err := n.Fn(ctx, s)
	if err != nil {
		return err
	}
	pipeline.Merge(s, u)
	return nil
}

// FanOutNode adapts a cohort dispatch (typically built on substep.FanOut)
// into a Node: Dispatch must gather and sort its own per-element Updates
// (§4.3 "gather results in deterministic order") and MergeAll folds them
// into s as a single fan-in step.
type FanOutNode struct {
	ID       string
	Dispatch func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error)
}

func (n FanOutNode) Name() string { return n.ID }

func (n FanOutNode) Run(ctx context.Context, s *pipeline.State) error {
	updates, err := n.Dispatch(ctx, s)
	if err != nil {
		return err
	}
	pipeline.MergeAll(s, updates)
	return nil
}

// Graph is one phase's compiled state machine: an ordered sequence of
// nodes (sequential edges by default), where LoopNode entries implement
// the conditional re-entry edges of §4.3.
type Graph struct {
	Phase int
	Nodes []Node
}

// Run executes every node of the graph in sequence against s, then stamps
// s.Phase (§4.6: "{...phase_result, phase: p}" — done here rather than by
// the caller so every phase graph is self-contained).
func (g Graph) Run(ctx context.Context, s *pipeline.State) error {
	for _, n := range g.Nodes {
		if err := n.Run(ctx, s); err != nil {
			return err
		}
	}
	s.Phase = g.Phase
	return nil
}
