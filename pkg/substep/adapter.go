// Package substep wraps domain substep functions (LLM-invoked or
// deterministic) as graph nodes with the uniform signature
// (context, *pipeline.State) -> (pipeline.Update, error), per §4.2.
//
// The substep body itself never sees pipeline.State: it declares a narrow
// input struct and a narrow output struct, and the Adapter is responsible
// for extracting inputs, normalizing outputs, running the name-validation
// hook, and constructing the Update. This mirrors the teacher's
// BaseAgent/Controller split (pkg/agent/base_agent.go): the agent shell
// handles plumbing, the controller (here, the substep Func) owns the
// domain logic.
package substep

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

// Func is one substep's domain logic: read only the inputs it declares a
// need for, return its typed output. Adapters extract In from State and
// fold Out into an Update — Func itself never touches pipeline.State or
// pipeline.Update directly, which is what makes invariant M1 structural
// rather than a convention.
type Func[In any, Out any] func(ctx context.Context, in In) (Out, error)

// Validator is the entity/attribute-name validation hook (§4.2 item 3),
// run against substep output before it is folded into an Update. It never
// rejects output — only appends warnings.
type Validator func(s *pipeline.State, out any) []string

// Adapter wraps one substep as a graph node. Extract pulls the narrow input
// out of the shared state; Build takes the raw output and the state (for
// read-only cross-reference, e.g. resolving existing entity names) and
// returns the Update this node owns.
type Adapter[In any, Out any] struct {
	StepID    string
	Extract   func(s *pipeline.State) In
	Fn        Func[In, Out]
	Build     func(s *pipeline.State, out Out) pipeline.Update
	Validator Validator // optional
}

// Run executes the adapter against s: extracts input, invokes Fn, runs the
// validation hook, builds the Update, and stamps StepID/RawOutput. It does
// NOT merge the update into s — the caller (phasegraph.Node) does that, so
// that fan-out cohorts can gather many Updates before a single merge.
func (a Adapter[In, Out]) Run(ctx context.Context, s *pipeline.State) (pipeline.Update, error) {
	in := a.Extract(s)
	out, err := a.Fn(ctx, in)
	if err != nil {
		return pipeline.Update{}, fmt.Errorf("substep %s: %w", a.StepID, err)
	}

	var warnings []string
	if a.Validator != nil {
		warnings = a.Validator(s, out)
	}

	update := a.Build(s, out)
	update.StepID = a.StepID
	if update.RawOutput == nil {
		update.RawOutput = out
	}
	update.Warnings = append(update.Warnings, warnings...)
	return update, nil
}
