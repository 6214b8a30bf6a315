// Package convergence implements the bounded-iteration loop controls that
// keep phase subgraph loops from spinning (§4.4). It is the Go-idiomatic
// descendant of the teacher's OrchestratorGuardrails
// (pkg/agent/orchestrator/types.go): where the teacher bounds concurrent
// sub-agent fan-out with a fixed limit and a timeout, a Guard bounds a
// conditional loop edge with a fixed iteration budget and a forced-pass
// flag.
package convergence

import "fmt"

// Budgets are the maximum iteration counts named in §4.4.
var Budgets = struct {
	Connectivity       int
	RelationValidation int
	InfoNeedIdentify   int
	SQLValidationPerNeed int
	NamingValidation   int
	ConstraintDetect   int
	EntityCleanup      int
}{
	Connectivity:         3,
	RelationValidation:   3,
	InfoNeedIdentify:     10,
	SQLValidationPerNeed: 5,
	NamingValidation:     3,
	ConstraintDetect:     3,
	EntityCleanup:        3,
}

// Guard tracks one named loop's iteration count against its budget and
// exposes forced-pass semantics (§4.4): on exhaustion the loop's predicate
// must be rewritten to "pass" rather than spin forever.
type Guard struct {
	Name       string
	Budget     int
	iterations int
	forced     bool
}

// NewGuard creates a guard for loop name with the given budget.
func NewGuard(name string, budget int) *Guard {
	return &Guard{Name: name, Budget: budget}
}

// Tick records one loop iteration and returns whether the loop may continue
// (true) or must exit — either because the caller's convergence predicate
// held, or because the budget was exhausted (ForcedPass becomes true).
func (g *Guard) Tick(converged bool) (shouldContinue bool) {
	if converged {
		return false
	}
	g.iterations++
	if g.iterations >= g.Budget {
		g.forced = true
		return false
	}
	return true
}

// Iterations returns the number of Tick calls so far.
func (g *Guard) Iterations() int { return g.iterations }

// ForcedPassed reports whether the guard exited via budget exhaustion
// rather than convergence.
func (g *Guard) ForcedPassed() bool { return g.forced }

// Warning returns the forced-pass warning text, or "" if the guard
// converged normally.
func (g *Guard) Warning() string {
	if !g.forced {
		return ""
	}
	return fmt.Sprintf("%s: loop exhausted its budget of %d iterations; forced pass", g.Name, g.Budget)
}

// IterationsKey is the metadata key this guard's count is persisted under,
// e.g. "schema_connectivity_iterations".
func (g *Guard) IterationsKey() string { return g.Name + "_iterations" }

// ForcedPassKey is the metadata flag key, e.g.
// "schema_connectivity_forced_passed".
func (g *Guard) ForcedPassKey() string { return g.Name + "_forced_passed" }
