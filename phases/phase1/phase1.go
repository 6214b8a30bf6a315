// Package phase1 implements the Domain & Entity Discovery phase subgraph
// (§4.3 Phase 1): domain identification, entity mention mining, key-entity
// narrowing, parallel relation/auxiliary-entity discovery, entity
// consolidation, per-entity cardinality, relation extraction with a
// connectivity-repair loop, and relation validation with its own loop.
package phase1

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codeready-toolchain/nl2schema/pkg/convergence"
	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

// Build compiles the Phase 1 subgraph (C3) from its substep adapters.
func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 1,
		Nodes: []phasegraph.Node{
			common.Node(domainAdapter(deps)),
			common.Node(entityMentionAdapter(deps)),
			common.Node(keyEntityAdapter(deps)),
			phasegraph.ParallelNode{
				ID: "1.5+1.6",
				Branches: []phasegraph.FuncNode{
					common.Node(relationMentionAdapter(deps)),
					common.Node(auxiliaryEntityAdapter(deps)),
				},
			},
			common.Node(entityConsolidationAdapter(deps)),
			common.Node(entityAttributeGuardrailAdapter()),
			common.Node(entityRelationReclassificationAdapter()),
			cardinalityFanOut(deps),
			connectivityLoop(deps),
			relationCardinalityFanOut(deps),
			relationValidationLoop(deps),
		},
	}
}

// ---- 1.1 domain identification ----

type domainOutput struct {
	Domain   string `json:"domain"`
	Explicit bool   `json:"explicit"`
}

func domainAdapter(deps common.Deps) substep.Adapter[string, domainOutput] {
	return substep.Adapter[string, domainOutput]{
		StepID:  "1.1",
		Extract: func(s *pipeline.State) string { return s.NLDescription },
		Fn: func(ctx context.Context, nl string) (domainOutput, error) {
			return common.InvokeJSON[domainOutput](ctx, deps.Invoker, "1.1",
				"Identify the primary business domain of the description, and whether it was stated explicitly.",
				"{{.description}}", map[string]any{"description": nl})
		},
		Build: func(s *pipeline.State, out domainOutput) pipeline.Update {
			d, e := out.Domain, out.Explicit
			return pipeline.Update{Domain: &d, HasExplicitDomain: &e}
		},
	}
}

// ---- 1.2 entity-mention mining ----

type entityMentionOutput struct {
	Candidates []string `json:"candidates"`
}

func entityMentionAdapter(deps common.Deps) substep.Adapter[string, entityMentionOutput] {
	return substep.Adapter[string, entityMentionOutput]{
		StepID:  "1.2",
		Extract: func(s *pipeline.State) string { return s.NLDescription },
		Fn: func(ctx context.Context, nl string) (entityMentionOutput, error) {
			return common.InvokeJSON[entityMentionOutput](ctx, deps.Invoker, "1.2",
				"List every noun phrase that could plausibly become a database entity.",
				"{{.description}}", map[string]any{"description": nl})
		},
		Build: func(s *pipeline.State, out entityMentionOutput) pipeline.Update {
			return pipeline.Update{Metadata: pipeline.Metadata{"candidate_entities": out.Candidates}}
		},
	}
}

// ---- 1.4 key-entity narrowing ----

type namedEntity struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type keyEntityOutput struct {
	Entities []namedEntity `json:"entities"`
}

func keyEntityAdapter(deps common.Deps) substep.Adapter[[]string, keyEntityOutput] {
	return substep.Adapter[[]string, keyEntityOutput]{
		StepID: "1.4",
		Extract: func(s *pipeline.State) []string {
			cands, _ := s.Metadata["candidate_entities"].([]string)
			return cands
		},
		Fn: func(ctx context.Context, candidates []string) (keyEntityOutput, error) {
			return common.InvokeJSON[keyEntityOutput](ctx, deps.Invoker, "1.4",
				"Narrow the candidate noun phrases down to the key first-class entities.",
				"{{.candidates}}", map[string]any{"candidates": candidates})
		},
		Build: func(s *pipeline.State, out keyEntityOutput) pipeline.Update {
			entities := make([]pipeline.Entity, len(out.Entities))
			for i, e := range out.Entities {
				entities[i] = pipeline.Entity{Name: e.Name, Description: e.Description}
			}
			return pipeline.Update{Entities: entities}
		},
	}
}

// ---- 1.5 relation-mention (parallel branch) ----

type relationCandidate struct {
	Entities    []string `json:"entities"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
}

type relationMentionOutput struct {
	Relations []relationCandidate `json:"relations"`
}

func relationMentionAdapter(deps common.Deps) substep.Adapter[[]string, relationMentionOutput] {
	return substep.Adapter[[]string, relationMentionOutput]{
		StepID: "1.5",
		Extract: func(s *pipeline.State) []string { return s.EntityNames() },
		Fn: func(ctx context.Context, entities []string) (relationMentionOutput, error) {
			return common.InvokeJSON[relationMentionOutput](ctx, deps.Invoker, "1.5",
				"Identify relation mentions between the key entities.",
				"{{.entities}}", map[string]any{"entities": entities})
		},
		Build: func(s *pipeline.State, out relationMentionOutput) pipeline.Update {
			return pipeline.Update{Metadata: pipeline.Metadata{"step_1_5_result": out.Relations}}
		},
	}
}

// ---- 1.6 auxiliary entities (parallel branch) ----

func auxiliaryEntityAdapter(deps common.Deps) substep.Adapter[[]string, keyEntityOutput] {
	return substep.Adapter[[]string, keyEntityOutput]{
		StepID:  "1.6",
		Extract: func(s *pipeline.State) []string { return s.EntityNames() },
		Fn: func(ctx context.Context, entities []string) (keyEntityOutput, error) {
			return common.InvokeJSON[keyEntityOutput](ctx, deps.Invoker, "1.6",
				"Identify auxiliary/support entities implied but not yet captured.",
				"{{.entities}}", map[string]any{"entities": entities})
		},
		Build: func(s *pipeline.State, out keyEntityOutput) pipeline.Update {
			return pipeline.Update{Metadata: pipeline.Metadata{"step_1_6_result": out.Entities}}
		},
	}
}

// ---- 1.7 entity consolidation (fan-in of 1.5/1.6's transient results) ----

func entityConsolidationAdapter(deps common.Deps) substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "1.7",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			var newEntities []pipeline.Entity
			if aux, ok := s.Metadata["step_1_6_result"].([]namedEntity); ok {
				for _, e := range aux {
					if !s.HasEntity(e.Name) {
						newEntities = append(newEntities, pipeline.Entity{Name: e.Name, Description: e.Description})
					}
				}
			}
			var newRelations []pipeline.Relation
			if rels, ok := s.Metadata["step_1_5_result"].([]relationCandidate); ok {
				for _, r := range rels {
					newRelations = append(newRelations, pipeline.Relation{
						Entities: r.Entities, Type: r.Type, Description: r.Description, Arity: len(r.Entities),
					})
				}
			}
			return pipeline.Update{Entities: newEntities, Relations: newRelations}
		},
	}
}

// ---- 1.76 entity/attribute guardrail (deterministic) ----

// entityAttributeGuardrailAdapter flags duplicate (case-insensitive) entity
// names with one warning per repeat after the first occurrence — a
// structural guard against the consolidation step accidentally re-adding an
// entity already present. Entities is append-merged, so the repeats are not
// removed from the state.
func entityAttributeGuardrailAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "1.76",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			seen := map[string]bool{}
			var warnings []string
			for _, e := range s.Entities {
				key := strings.ToLower(e.Name)
				if seen[key] {
					warnings = append(warnings, fmt.Sprintf("1.76: duplicate entity %q flagged by guardrail", e.Name))
					continue
				}
				seen[key] = true
			}
			return pipeline.Update{Warnings: warnings}
		},
	}
}

// ---- 1.75 entity/relation reclassification (deterministic) ----

// entityRelationReclassificationAdapter warns about every Relation with
// fewer than two entities — a relation needs at least two participants;
// anything less was a mis-classified entity mention. The relation itself
// stays in Relations (append-merged); phases/compile.Schema skips it.
func entityRelationReclassificationAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "1.75",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			var warnings []string
			for _, r := range s.Relations {
				if len(r.Entities) < 2 {
					warnings = append(warnings, fmt.Sprintf("1.75: relation %q has fewer than two entities, reclassified as noise", r.Type))
				}
			}
			return pipeline.Update{Warnings: warnings}
		},
	}
}

// ---- 1.8 per-entity cardinality (fan-out) ----

type cardinalityOutput struct {
	Cardinality string `json:"cardinality"`
}

func cardinalityFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "1.8",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			entities := append([]pipeline.Entity(nil), s.Entities...)
			results := substep.FanOut(ctx, entities, func(e pipeline.Entity) string { return e.Name }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, e pipeline.Entity) (cardinalityOutput, error) {
					return common.InvokeJSON[cardinalityOutput](ctx, deps.Invoker, "1.8",
						"Estimate the expected row-count cardinality class for this entity (low/medium/high).",
						"{{.entity}}", map[string]any{"entity": e.Name, "description": e.Description})
				})

			updated := make(map[string]string, len(results))
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				updated[r.Key] = r.Value.Cardinality
			}
			newEntities := make([]pipeline.Entity, len(s.Entities))
			for i, e := range s.Entities {
				e.Cardinality = updated[e.Name]
				newEntities[i] = e
			}
			return []pipeline.Update{{
				StepID:   "1.8",
				Warnings: errs,
				Metadata: pipeline.Metadata{"step_1_8_entities": newEntities},
			}}, nil
		},
	}
}

// ---- 1.9 relation extraction / 1.10 connectivity check loop ----

type relationExtractionOutput struct {
	Relations []relationCandidate `json:"relations"`
}

func connectivityLoop(deps common.Deps) *phasegraph.LoopNode {
	guard := convergence.NewGuard("schema_connectivity", convergence.Budgets.Connectivity)

	extract := substep.Adapter[[]string, relationExtractionOutput]{
		StepID: "1.9",
		Extract: func(s *pipeline.State) []string {
			orphans := s.Metadata.OrphanEntities()
			return orphans
		},
		Fn: func(ctx context.Context, orphanHints []string) (relationExtractionOutput, error) {
			return common.InvokeJSON[relationExtractionOutput](ctx, deps.Invoker, "1.9",
				"Extract relations between entities, paying special attention to the given orphan hints.",
				"{{.hints}}", map[string]any{"hints": orphanHints})
		},
		Build: func(s *pipeline.State, out relationExtractionOutput) pipeline.Update {
			if entities, ok := s.Metadata["step_1_8_entities"].([]pipeline.Entity); ok {
				_ = entities // 1.8's cardinalities live only in this metadata key; 1.9 does not use them
			}
			var rels []pipeline.Relation
			for _, r := range out.Relations {
				rels = append(rels, pipeline.Relation{Entities: r.Entities, Type: r.Type, Description: r.Description, Arity: len(r.Entities)})
			}
			return pipeline.Update{Relations: rels}
		},
	}

	checkConnectivity := substep.Adapter[struct{}, struct{}]{
		StepID:  "1.10",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			orphans := orphanEntities(s)
			return pipeline.Update{Metadata: pipeline.Metadata{keyOrphanEntities: orphans}}
		},
	}

	inner := phasegraph.FuncNode{
		ID: "1.9+1.10",
		Fn: func(ctx context.Context, s *pipeline.State) (pipeline.Update, error) {
			u1, err := extract.Run(ctx, s)
			if err != nil {
				return pipeline.Update{}, err
			}
			pipeline.Merge(s, u1)
			return checkConnectivity.Run(ctx, s)
		},
	}

	return &phasegraph.LoopNode{
		Inner: inner,
		Guard: guard,
		Converged: func(s *pipeline.State) bool {
			return len(s.Metadata.OrphanEntities()) == 0
		},
	}
}

const keyOrphanEntities = "orphan_entities"

// orphanEntities returns entities that appear in no relation.
func orphanEntities(s *pipeline.State) []string {
	connected := map[string]bool{}
	for _, r := range s.Relations {
		for _, e := range r.Entities {
			connected[strings.ToLower(e)] = true
		}
	}
	var orphans []string
	for _, e := range s.Entities {
		if !connected[strings.ToLower(e.Name)] {
			orphans = append(orphans, e.Name)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// ---- 1.11 per-relation cardinality (fan-out) / 1.12 relation validation loop ----

type relationCardinalityOutput struct {
	EntityCardinalities map[string]string `json:"entity_cardinalities"`
}

func relationCardinalityFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "1.11",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			relations := append([]pipeline.Relation(nil), s.Relations...)
			results := substep.FanOut(ctx, relations, pipeline.RelationSignature, deps.MaxFanOutConcurrency,
				func(ctx context.Context, r pipeline.Relation) (relationCardinalityOutput, error) {
					return common.InvokeJSON[relationCardinalityOutput](ctx, deps.Invoker, "1.11",
						"Assign per-entity participation cardinalities for this relation.",
						"{{.relation}}", map[string]any{"entities": r.Entities, "type": r.Type})
				})

			byKey := make(map[string]map[string]string, len(results))
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				byKey[r.Key] = r.Value.EntityCardinalities
			}
			newRelations := make([]pipeline.Relation, len(s.Relations))
			for i, r := range s.Relations {
				r.EntityCardinalities = byKey[pipeline.RelationSignature(r)]
				newRelations[i] = r
			}
			return []pipeline.Update{{
				StepID:   "1.11",
				Warnings: errs,
				Metadata: pipeline.Metadata{"step_1_11_relations": newRelations},
			}}, nil
		},
	}
}

type relationValidationOutput struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

func relationValidationLoop(deps common.Deps) *phasegraph.LoopNode {
	guard := convergence.NewGuard("relation_validation", convergence.Budgets.RelationValidation)

	validate := substep.Adapter[[]pipeline.Relation, relationValidationOutput]{
		StepID:  "1.12",
		Extract: func(s *pipeline.State) []pipeline.Relation { return s.Relations },
		Fn: func(ctx context.Context, rels []pipeline.Relation) (relationValidationOutput, error) {
			return common.InvokeJSON[relationValidationOutput](ctx, deps.Invoker, "1.12",
				"Validate the extracted relations for semantic consistency.",
				"{{.relations}}", map[string]any{"relations": rels})
		},
		Build: func(s *pipeline.State, out relationValidationOutput) pipeline.Update {
			return pipeline.Update{
				Metadata: pipeline.Metadata{"relation_validation_passed": out.Valid, "relation_validation_issues": out.Issues},
				Warnings: out.Issues,
			}
		},
	}

	reextract := substep.Adapter[struct{}, relationExtractionOutput]{
		StepID: "1.9",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn: func(ctx context.Context, _ struct{}) (relationExtractionOutput, error) {
			return common.InvokeJSON[relationExtractionOutput](ctx, deps.Invoker, "1.9",
				"Re-extract relations after validation failure.", "{{.description}}", map[string]any{})
		},
		Build: func(s *pipeline.State, out relationExtractionOutput) pipeline.Update {
			var rels []pipeline.Relation
			for _, r := range out.Relations {
				rels = append(rels, pipeline.Relation{Entities: r.Entities, Type: r.Type, Description: r.Description, Arity: len(r.Entities)})
			}
			return pipeline.Update{Relations: rels}
		},
	}

	inner := phasegraph.FuncNode{
		ID: "1.12loop",
		Fn: func(ctx context.Context, s *pipeline.State) (pipeline.Update, error) {
			u, err := validate.Run(ctx, s)
			if err != nil {
				return pipeline.Update{}, err
			}
			pipeline.Merge(s, u)
			if passed, _ := s.Metadata["relation_validation_passed"].(bool); passed {
				return pipeline.Update{}, nil
			}
			return reextract.Run(ctx, s)
		},
	}

	return &phasegraph.LoopNode{
		Inner: inner,
		Guard: guard,
		Converged: func(s *pipeline.State) bool {
			passed, _ := s.Metadata["relation_validation_passed"].(bool)
			return passed
		},
	}
}

// Gate exposes the Phase-1 gate for callers that want to check it directly
// (the master orchestrator normally invokes gate.Run(1, s) itself).
var Gate = gate.Registry[1]
