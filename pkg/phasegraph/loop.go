package phasegraph

import (
	"context"

	"github.com/codeready-toolchain/nl2schema/pkg/convergence"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

// LoopNode re-enters Inner until Converged reports true or the guard's
// budget is exhausted (§4.3 conditional loop edges; §4.4 convergence
// guards). On exhaustion it records the forced-pass flag and iteration
// count into metadata and appends the guard's warning, then exits anyway —
// loops never spin past their budget (§9 "forced-pass convergence").
type LoopNode struct {
	Inner     Node
	Guard     *convergence.Guard
	Converged func(s *pipeline.State) bool
}

func (n *LoopNode) Name() string { return n.Guard.Name }

func (n *LoopNode) Run(ctx context.Context, s *pipeline.State) error {
	for {
		if err := n.Inner.Run(ctx, s); err != nil {
			return err
		}
		converged := n.Converged(s)
		cont := n.Guard.Tick(converged)
		s.Metadata[n.Guard.IterationsKey()] = n.Guard.Iterations()
		if !cont {
			if n.Guard.ForcedPassed() {
				s.Warnings = append(s.Warnings, n.Guard.Warning())
				s.Metadata[n.Guard.ForcedPassKey()] = true
			}
			return nil
		}
	}
}
