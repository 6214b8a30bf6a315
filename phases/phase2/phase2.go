// Package phase2 implements the Attribute Discovery & Schema Design phase
// subgraph (§4.3 Phase 2): per-entity attribute mining, consolidation,
// naming normalization with a validation loop, primary-key and derived
// formula discovery, and an entity-cleanup loop.
package phase2

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codeready-toolchain/nl2schema/pkg/convergence"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 2,
		Nodes: []phasegraph.Node{
			attributeMentionFanOut(deps),     // 2.1
			common.Node(attributeConsolidationAdapter()), // 2.2
			namingLoop(deps),                  // 2.3 <-> 2.6
			common.Node(primaryKeyAdapter(deps)),          // 2.7
			common.Node(derivedFormulaAdapter(deps)),      // 2.8
			common.Node(constraintHintAdapter(deps)),      // 2.9
			common.Node(attributeOrderingAdapter()),       // 2.10
			common.Node(attributeDedupAdapter()),          // 2.11
			common.Node(attributeMergeAdapter()),          // 2.12
			common.Node(schemaNormalizationAdapter()),     // 2.13
			cleanupLoop(deps),                 // 2.14
			common.Node(finalizeAdapter()),    // 2.15
		},
	}
}

type attributeCandidate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TypeHint    string `json:"type_hint"`
}

type attributeMentionOutput struct {
	Attributes []attributeCandidate `json:"attributes"`
}

// 2.1: one LLM call per entity, fanned out.
func attributeMentionFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "2.1",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			entities := append([]pipeline.Entity(nil), s.Entities...)
			results := substep.FanOut(ctx, entities, func(e pipeline.Entity) string { return e.Name }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, e pipeline.Entity) (attributeMentionOutput, error) {
					return common.InvokeJSON[attributeMentionOutput](ctx, deps.Invoker, "2.1",
						"List plausible attributes for this entity.", "{{.entity}}",
						map[string]any{"entity": e.Name, "description": e.Description})
				})
			transient := make(map[string][]attributeCandidate, len(results))
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				transient[r.Key] = r.Value.Attributes
			}
			return []pipeline.Update{{StepID: "2.1", Warnings: errs, Metadata: pipeline.Metadata{"step_2_1_result": transient}}}, nil
		},
	}
}

// 2.2: deterministic fan-in, builds the canonical Attributes map (overwrite
// field — single-writer superstep per §3.2 invariant M2).
func attributeConsolidationAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "2.2",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			transient, _ := s.Metadata["step_2_1_result"].(map[string][]attributeCandidate)
			attrs := make(map[string][]pipeline.Attribute, len(s.Entities))
			for _, e := range s.Entities {
				cands := transient[e.Name]
				list := make([]pipeline.Attribute, len(cands))
				for i, c := range cands {
					list[i] = pipeline.Attribute{Name: c.Name, Description: c.Description, TypeHint: c.TypeHint}
				}
				attrs[e.Name] = list
			}
			return pipeline.Update{Attributes: attrs}
		},
	}
}

type namingValidationOutput struct {
	Valid bool     `json:"valid"`
	Fixes []string `json:"fixes"`
}

// 2.3 (naming normalization) <-> 2.6 (naming validation), looping back to
// 2.3 up to convergence.Budgets.NamingValidation times.
func namingLoop(deps common.Deps) *phasegraph.LoopNode {
	guard := convergence.NewGuard("naming_validation", convergence.Budgets.NamingValidation)

	normalize := substep.Adapter[struct{}, struct{}]{
		StepID:  "2.3",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			attrs := make(map[string][]pipeline.Attribute, len(s.Attributes))
			for entity, list := range s.Attributes {
				normalized := make([]pipeline.Attribute, len(list))
				for i, a := range list {
					a.Name = toSnakeCase(a.Name)
					normalized[i] = a
				}
				attrs[entity] = normalized
			}
			return pipeline.Update{Attributes: attrs}
		},
	}

	validate := substep.Adapter[map[string][]pipeline.Attribute, namingValidationOutput]{
		StepID:  "2.6",
		Extract: func(s *pipeline.State) map[string][]pipeline.Attribute { return s.Attributes },
		Fn: func(ctx context.Context, attrs map[string][]pipeline.Attribute) (namingValidationOutput, error) {
			for entity, list := range attrs {
				seen := map[string]bool{}
				for _, a := range list {
					key := strings.ToLower(a.Name)
					if seen[key] {
						return namingValidationOutput{Valid: false, Fixes: []string{fmt.Sprintf("duplicate attribute %s on %s", a.Name, entity)}}, nil
					}
					seen[key] = true
				}
			}
			return namingValidationOutput{Valid: true}, nil
		},
		Build: func(s *pipeline.State, out namingValidationOutput) pipeline.Update {
			return pipeline.Update{
				Metadata: pipeline.Metadata{"naming_validation_passed": out.Valid},
				Warnings: out.Fixes,
			}
		},
	}

	inner := phasegraph.FuncNode{
		ID: "2.3+2.6",
		Fn: func(ctx context.Context, s *pipeline.State) (pipeline.Update, error) {
			u, err := normalize.Run(ctx, s)
			if err != nil {
				return pipeline.Update{}, err
			}
			pipeline.Merge(s, u)
			return validate.Run(ctx, s)
		},
	}

	return &phasegraph.LoopNode{
		Inner: inner,
		Guard: guard,
		Converged: func(s *pipeline.State) bool {
			passed, _ := s.Metadata["naming_validation_passed"].(bool)
			return passed
		},
	}
}

func toSnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		if r == ' ' || r == '-' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Trim(strings.ToLower(b.String()), "_")
}

// 2.7: primary-key candidate identification. Deterministic heuristic: the
// first attribute literally named "id" or "<entity>_id"; otherwise a
// surrogate integer attribute "<entity>_id" is appended and used.
func primaryKeyAdapter(deps common.Deps) substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "2.7",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			pks := make(map[string][]string, len(s.Entities))
			attrs := make(map[string][]pipeline.Attribute, len(s.Entities))
			for _, e := range s.Entities {
				list := s.Attributes[e.Name]
				candidate := ""
				wantID := strings.ToLower(e.Name) + "_id"
				for _, a := range list {
					low := strings.ToLower(a.Name)
					if low == "id" || low == wantID {
						candidate = a.Name
						break
					}
				}
				if candidate == "" {
					candidate = strings.ToLower(e.Name) + "_id"
					list = append(append([]pipeline.Attribute(nil), list...),
						pipeline.Attribute{Name: candidate, Description: "surrogate primary key", TypeHint: "integer"})
				}
				attrs[e.Name] = list
				pks[e.Name] = []string{candidate}
			}
			return pipeline.Update{PrimaryKeys: pks, Attributes: attrs}
		},
	}
}

// 2.8: derived-formula detection (deterministic heuristic: attributes whose
// description mentions "calculated"/"derived"/"computed").
func derivedFormulaAdapter(deps common.Deps) substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "2.8",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			formulas := map[string]pipeline.DerivedFormula{}
			for entity, attrs := range s.Attributes {
				for _, a := range attrs {
					d := strings.ToLower(a.Description)
					if strings.Contains(d, "calculated") || strings.Contains(d, "derived") || strings.Contains(d, "computed") {
						key := entity + "." + a.Name
						formulas[key] = pipeline.DerivedFormula{Entity: entity, Attribute: a.Name, Formula: a.Description}
					}
				}
			}
			return pipeline.Update{DerivedFormulas: formulas}
		},
	}
}

type constraintHintOutput struct {
	Constraints []pipeline.Constraint `json:"constraints"`
}

// 2.9: constraint hints (LLM), append-only.
func constraintHintAdapter(deps common.Deps) substep.Adapter[map[string][]pipeline.Attribute, constraintHintOutput] {
	return substep.Adapter[map[string][]pipeline.Attribute, constraintHintOutput]{
		StepID:  "2.9",
		Extract: func(s *pipeline.State) map[string][]pipeline.Attribute { return s.Attributes },
		Fn: func(ctx context.Context, attrs map[string][]pipeline.Attribute) (constraintHintOutput, error) {
			return common.InvokeJSON[constraintHintOutput](ctx, deps.Invoker, "2.9",
				"Suggest constraint hints (unique, check, range, categorical) from attribute descriptions.",
				"{{.attributes}}", map[string]any{"attributes": attrs})
		},
		Build: func(s *pipeline.State, out constraintHintOutput) pipeline.Update {
			return pipeline.Update{Constraints: out.Constraints}
		},
	}
}

// 2.10: deterministic attribute ordering (primary key first, then
// alphabetical) — cosmetic but keeps DDL output stable.
func attributeOrderingAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "2.10",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			attrs := make(map[string][]pipeline.Attribute, len(s.Attributes))
			for entity, list := range s.Attributes {
				pk := map[string]bool{}
				for _, k := range s.PrimaryKeys[entity] {
					pk[k] = true
				}
				sorted := append([]pipeline.Attribute(nil), list...)
				sort.SliceStable(sorted, func(i, j int) bool {
					pi, pj := pk[sorted[i].Name], pk[sorted[j].Name]
					if pi != pj {
						return pi
					}
					return sorted[i].Name < sorted[j].Name
				})
				attrs[entity] = sorted
			}
			return pipeline.Update{Attributes: attrs}
		},
	}
}

// 2.11: dedup attributes within an entity, case-insensitive, keep first.
func attributeDedupAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "2.11",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			attrs := make(map[string][]pipeline.Attribute, len(s.Attributes))
			for entity, list := range s.Attributes {
				seen := map[string]bool{}
				var deduped []pipeline.Attribute
				for _, a := range list {
					key := strings.ToLower(a.Name)
					if seen[key] {
						continue
					}
					seen[key] = true
					deduped = append(deduped, a)
				}
				attrs[entity] = deduped
			}
			return pipeline.Update{Attributes: attrs}
		},
	}
}

// 2.12: merge cardinality hints from 1.8 into attribute-level metadata
// (no-op structurally here; cardinality already lives on Entity).
func attributeMergeAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "2.12",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			return pipeline.Update{}
		},
	}
}

// 2.13: schema normalization — ensures every entity has a primary_keys
// entry, even if empty, so downstream phases can index safely.
func schemaNormalizationAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "2.13",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			pks := make(map[string][]string, len(s.Entities))
			for _, e := range s.Entities {
				if existing, ok := s.PrimaryKeys[e.Name]; ok {
					pks[e.Name] = existing
				} else {
					pks[e.Name] = nil
				}
			}
			return pipeline.Update{PrimaryKeys: pks}
		},
	}
}

// 2.14: entity cleanup loop — counts entities with zero attributes
// (mis-fired 1.6 auxiliary entities) into
// metadata.entity_cleanup_remaining, looping until the count is zero or the
// budget (convergence.Budgets.EntityCleanup) is exhausted. It removes no
// entities and adds no attributes, so a non-zero count ends in a forced
// pass.
func cleanupLoop(deps common.Deps) *phasegraph.LoopNode {
	guard := convergence.NewGuard("entity_cleanup", convergence.Budgets.EntityCleanup)

	cleanup := substep.Adapter[struct{}, struct{}]{
		StepID:  "2.14",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			empty := 0
			for _, e := range s.Entities {
				if len(s.Attributes[e.Name]) == 0 {
					empty++
				}
			}
			return pipeline.Update{Metadata: pipeline.Metadata{"entity_cleanup_remaining": empty}}
		},
	}

	return &phasegraph.LoopNode{
		Inner: common.Node(cleanup),
		Guard: guard,
		Converged: func(s *pipeline.State) bool {
			remaining, _ := s.Metadata["entity_cleanup_remaining"].(int)
			return remaining == 0
		},
	}
}

// 2.15: finalize — no-op marker node closing the phase.
func finalizeAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "2.15",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build:   func(s *pipeline.State, _ struct{}) pipeline.Update { return pipeline.Update{} },
	}
}
