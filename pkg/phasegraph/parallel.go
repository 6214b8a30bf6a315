package phasegraph

import (
	"context"
	"sync"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

// ParallelNode runs several independent substeps concurrently against the
// same read-only snapshot of s, then merges their Updates in declared
// branch order (§4.3: "Fan-out to 1.5 and 1.6 in parallel; fan-in at 1.7").
// Unlike FanOutNode (one substep repeated per cohort element), ParallelNode
// runs distinct named substeps side by side — each must own disjoint
// append/metadata keys (§3.2 invariant M2), which the merge-order below
// enforces deterministically regardless of completion order.
type ParallelNode struct {
	ID       string
	Branches []FuncNode
}

func (n ParallelNode) Name() string { return n.ID }

func (n ParallelNode) Run(ctx context.Context, s *pipeline.State) error {
	type outcome struct {
		update pipeline.Update
		err    error
	}
	results := make([]outcome, len(n.Branches))

	var wg sync.WaitGroup
	wg.Add(len(n.Branches))
	for i, b := range n.Branches {
		i, b := i, b
		go func() {
			defer wg.Done()
			u, err := b.Fn(ctx, s)
			results[i] = outcome{update: u, err: err}
		}()
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}
	for _, r := range results {
		pipeline.Merge(s, r.update)
	}
	return nil
}
