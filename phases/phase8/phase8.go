// Package phase8 implements the Functional Dependencies & Constraints
// phase subgraph (§4.3 Phase 8): per-entity FD analysis, categorical
// column/value identification, a self-looping constraint-detection step,
// per-constraint scope and enforcement-strategy analysis, conflict
// detection, and final constraint compilation.
//
// Constraints is append-only (§3.2), so 8.5/8.6/8.7's per-constraint
// annotations accumulate in metadata keyed by constraint ID rather than
// mutating existing Constraint values in place; 8.8 is the single writer
// that appends the authoritative, fully-annotated Constraint set.
package phase8

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/nl2schema/pkg/convergence"
	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 8,
		Nodes: []phasegraph.Node{
			fdFanOut(deps),                               // 8.1
			common.Node(categoricalColumnAdapter(deps)),  // 8.2
			categoricalValueFanOut(deps),                  // 8.3
			constraintDetectLoop(deps),                    // 8.4
			scopeFanOut(deps),                              // 8.5
			enforcementFanOut(deps),                        // 8.6
			common.Node(conflictDetectionAdapter(deps)),   // 8.7
			common.Node(constraintCompileAdapter()),        // 8.8
		},
	}
}

type fdOutput struct {
	Dependencies []struct {
		Determinant []string `json:"determinant"`
		Dependent   []string `json:"dependent"`
	} `json:"dependencies"`
}

// 8.1: one LLM call per entity, fanned out.
func fdFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "8.1",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			entities := append([]pipeline.Entity(nil), s.Entities...)
			results := substep.FanOut(ctx, entities, func(e pipeline.Entity) string { return e.Name }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, e pipeline.Entity) (fdOutput, error) {
					return common.InvokeJSON[fdOutput](ctx, deps.Invoker, "8.1",
						"Identify functional dependencies among this entity's attributes.",
						"{{.entity}}", map[string]any{"entity": e.Name, "attributes": s.Attributes[e.Name]})
				})

			var fds []pipeline.FunctionalDependency
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				for _, d := range r.Value.Dependencies {
					fds = append(fds, pipeline.FunctionalDependency{Entity: r.Key, Determinant: d.Determinant, Dependent: d.Dependent})
				}
			}
			return []pipeline.Update{{StepID: "8.1", Warnings: errs, FunctionalDependencies: fds}}, nil
		},
	}
}

// 8.2: deterministic pass marking which attributes are categorical,
// recorded via CategoricalAttributes (append-rule). The type-hint heuristic
// is the only detection: 8.3's per-attribute fan-out covers only entries
// already in CategoricalAttributes and re-checks no other attributes.
func categoricalColumnAdapter(deps common.Deps) substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "8.2",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			var found []pipeline.CategoricalAttribute
			for _, e := range s.Entities {
				for _, a := range s.Attributes[e.Name] {
					if looksCategorical(a) {
						found = append(found, pipeline.CategoricalAttribute{Entity: e.Name, Attribute: a.Name})
					}
				}
			}
			return pipeline.Update{CategoricalAttributes: found}
		},
	}
}

func looksCategorical(a pipeline.Attribute) bool {
	switch a.TypeHint {
	case "enum", "category", "categorical", "status", "boolean":
		return true
	default:
		return false
	}
}

type categoricalValueOutput struct {
	Values []string `json:"values"`
}

// 8.3: fan-out one call per entry in s.CategoricalAttributes (populated by
// 8.2), populating s.CategoricalValues (overwrite-rule, merged against the
// existing map rather than replacing it wholesale).
func categoricalValueFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "8.3",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			targets := append([]pipeline.CategoricalAttribute(nil), s.CategoricalAttributes...)
			results := substep.FanOut(ctx, targets, func(c pipeline.CategoricalAttribute) string { return c.Entity + "." + c.Attribute }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, c pipeline.CategoricalAttribute) (categoricalValueOutput, error) {
					return common.InvokeJSON[categoricalValueOutput](ctx, deps.Invoker, "8.3",
						"List the plausible enumerated values for this categorical attribute.",
						"{{.attribute}}", map[string]any{"entity": c.Entity, "attribute": c.Attribute})
				})

			values := make(map[string][]string, len(s.CategoricalValues))
			for k, v := range s.CategoricalValues {
				values[k] = v
			}
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				values[r.Key] = r.Value.Values
			}
			return []pipeline.Update{{StepID: "8.3", Warnings: errs, CategoricalValues: values}}, nil
		},
	}
}

type constraintDetectOutput struct {
	Constraints []pipeline.Constraint `json:"constraints"`
}

// 8.4: constraint-detection loop — keeps asking for additional constraints
// until a round returns nothing new or convergence.Budgets.ConstraintDetect
// is exhausted.
func constraintDetectLoop(deps common.Deps) *phasegraph.LoopNode {
	guard := convergence.NewGuard("constraint_detect", convergence.Budgets.ConstraintDetect)

	detect := substep.Adapter[[]pipeline.Constraint, constraintDetectOutput]{
		StepID:  "8.4",
		Extract: func(s *pipeline.State) []pipeline.Constraint { return s.Constraints },
		Fn: func(ctx context.Context, existing []pipeline.Constraint) (constraintDetectOutput, error) {
			return common.InvokeJSON[constraintDetectOutput](ctx, deps.Invoker, "8.4",
				"Identify additional data-integrity constraints not yet captured.",
				"{{.existing}}", map[string]any{"existing": existing})
		},
		Build: func(s *pipeline.State, out constraintDetectOutput) pipeline.Update {
			existing := map[string]bool{}
			for _, c := range s.Constraints {
				existing[c.ID] = true
			}
			var fresh []pipeline.Constraint
			for _, c := range out.Constraints {
				if existing[c.ID] {
					continue
				}
				fresh = append(fresh, c)
			}
			return pipeline.Update{
				Constraints: fresh,
				Metadata:    pipeline.Metadata{"constraint_detect_new_count": len(fresh)},
			}
		},
	}

	return &phasegraph.LoopNode{
		Inner: common.Node(detect),
		Guard: guard,
		Converged: func(s *pipeline.State) bool {
			n, _ := s.Metadata["constraint_detect_new_count"].(int)
			return n == 0
		},
	}
}

type scopeOutput struct {
	Scope string `json:"scope"`
}

// 8.5: per-constraint scope analysis, fanned out; result stored under
// metadata.constraint_scopes keyed by constraint ID.
func scopeFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "8.5",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			constraints := append([]pipeline.Constraint(nil), s.Constraints...)
			results := substep.FanOut(ctx, constraints, func(c pipeline.Constraint) string { return c.ID }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, c pipeline.Constraint) (scopeOutput, error) {
					return common.InvokeJSON[scopeOutput](ctx, deps.Invoker, "8.5",
						"Determine the scope (column, row, table, cross-table) of this constraint.",
						"{{.constraint}}", map[string]any{"constraint": c})
				})
			scopes := map[string]string{}
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				scopes[r.Key] = r.Value.Scope
			}
			return []pipeline.Update{{StepID: "8.5", Warnings: errs, Metadata: pipeline.Metadata{"constraint_scopes": scopes}}}, nil
		},
	}
}

type enforcementOutput struct {
	Strategy string `json:"strategy"`
}

// 8.6: per-constraint enforcement-strategy analysis, fanned out; result
// stored under metadata.constraint_enforcement keyed by constraint ID.
func enforcementFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "8.6",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			constraints := append([]pipeline.Constraint(nil), s.Constraints...)
			results := substep.FanOut(ctx, constraints, func(c pipeline.Constraint) string { return c.ID }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, c pipeline.Constraint) (enforcementOutput, error) {
					return common.InvokeJSON[enforcementOutput](ctx, deps.Invoker, "8.6",
						"Recommend an enforcement strategy (database constraint vs application-level check) for this constraint.",
						"{{.constraint}}", map[string]any{"constraint": c})
				})
			strategies := map[string]string{}
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				strategies[r.Key] = r.Value.Strategy
			}
			return []pipeline.Update{{StepID: "8.6", Warnings: errs, Metadata: pipeline.Metadata{"constraint_enforcement": strategies}}}, nil
		},
	}
}

type conflictOutput struct {
	Conflicts []struct {
		ConstraintIDs []string `json:"constraint_ids"`
		Resolution    string   `json:"resolution"`
	} `json:"conflicts"`
}

// 8.7: conflict detection across the annotated constraint set; a detected
// conflict is recorded as a warning plus a resolution note in metadata —
// it does not delete constraints (only 8.8's compile step decides the
// final set), since a conflict may be resolvable by scope narrowing
// rather than removal.
func conflictDetectionAdapter(deps common.Deps) substep.Adapter[[]pipeline.Constraint, conflictOutput] {
	return substep.Adapter[[]pipeline.Constraint, conflictOutput]{
		StepID:  "8.7",
		Extract: func(s *pipeline.State) []pipeline.Constraint { return s.Constraints },
		Fn: func(ctx context.Context, constraints []pipeline.Constraint) (conflictOutput, error) {
			if len(constraints) == 0 {
				return conflictOutput{}, nil
			}
			return common.InvokeJSON[conflictOutput](ctx, deps.Invoker, "8.7",
				"Identify conflicting constraints and how each conflict should be resolved.",
				"{{.constraints}}", map[string]any{"constraints": constraints})
		},
		Build: func(s *pipeline.State, out conflictOutput) pipeline.Update {
			var warnings []string
			resolutions := map[string]string{}
			for _, c := range out.Conflicts {
				key := fmt.Sprintf("%v", c.ConstraintIDs)
				resolutions[key] = c.Resolution
				warnings = append(warnings, fmt.Sprintf("8.7: conflict among constraints %v resolved as %q", c.ConstraintIDs, c.Resolution))
			}
			return pipeline.Update{
				Warnings: warnings,
				Metadata: pipeline.Metadata{"constraint_conflict_resolutions": resolutions},
			}
		},
	}
}

// 8.8: final constraint compilation — merges each constraint with its
// scope/enforcement annotations and appends the authoritative set. IDs are
// namespaced so they never collide with the 2.9 hint-stage or 8.4
// detection-stage entries already present in s.Constraints.
func constraintCompileAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "8.8",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			scopes, _ := decodeMeta(s.Metadata, "constraint_scopes")
			enforcement, _ := decodeMeta(s.Metadata, "constraint_enforcement")

			var compiled []pipeline.Constraint
			for _, c := range s.Constraints {
				final := c
				final.ID = "c8-" + c.ID
				if scope, ok := scopes[c.ID]; ok {
					final.Scope = scope
				}
				params := map[string]any{}
				for k, v := range c.Params {
					params[k] = v
				}
				if strategy, ok := enforcement[c.ID]; ok {
					params["enforcement_strategy"] = strategy
				}
				final.Params = params
				compiled = append(compiled, final)
			}
			return pipeline.Update{Constraints: compiled}
		},
	}
}

func decodeMeta(m pipeline.Metadata, key string) (map[string]string, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	out, ok := v.(map[string]string)
	return out, ok
}

// Gate exposes the Phase-8 gate for direct callers.
var Gate = gate.Registry[8]
