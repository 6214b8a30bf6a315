// Package phase3 implements the ER Design Compilation phase subgraph
// (§4.3 Phase 3): information-need identification looping until complete,
// a fallback attribute-discovery re-run for entities the completeness
// check flags as thin, deterministic ER-design assembly, junction-table
// naming, and the preliminary relational-schema compile.
package phase3

import (
	"context"
	"sort"
	"strings"

	"github.com/codeready-toolchain/nl2schema/pkg/convergence"
	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
	"github.com/codeready-toolchain/nl2schema/phases/compile"
)

func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 3,
		Nodes: []phasegraph.Node{
			infoNeedLoop(deps),                     // 3.1 <-> 3.2
			common.Node(attributeBackfillAdapter(deps)), // 3.3
			common.Node(erCompileAdapter()),         // 3.4
			common.Node(junctionNamingAdapter(deps)), // 3.45
			common.Node(relationalCompileAdapter()),  // 3.5
		},
	}
}

type infoNeedCandidate struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type infoNeedOutput struct {
	Needs []infoNeedCandidate `json:"needs"`
}

// 3.1 (identify information needs) <-> 3.2 (completeness check), looping
// until the completeness check passes or convergence.Budgets.InfoNeedIdentify
// is exhausted.
func infoNeedLoop(deps common.Deps) *phasegraph.LoopNode {
	guard := convergence.NewGuard("info_need_identify", convergence.Budgets.InfoNeedIdentify)

	identify := substep.Adapter[string, infoNeedOutput]{
		StepID:  "3.1",
		Extract: func(s *pipeline.State) string { return s.NLDescription },
		Fn: func(ctx context.Context, nl string) (infoNeedOutput, error) {
			return common.InvokeJSON[infoNeedOutput](ctx, deps.Invoker, "3.1",
				"Identify the information needs (questions the schema must answer) implied by the description.",
				"{{.description}}", map[string]any{"description": nl})
		},
		Build: func(s *pipeline.State, out infoNeedOutput) pipeline.Update {
			existing := map[string]bool{}
			for _, n := range s.InformationNeeds {
				existing[n.ID] = true
			}
			var needs []pipeline.InformationNeed
			for _, c := range out.Needs {
				if existing[c.ID] {
					continue
				}
				needs = append(needs, pipeline.InformationNeed{ID: c.ID, Description: c.Description})
			}
			return pipeline.Update{InformationNeeds: needs}
		},
	}

	completeness := substep.Adapter[[]pipeline.InformationNeed, struct{ Complete bool }]{
		StepID:  "3.2",
		Extract: func(s *pipeline.State) []pipeline.InformationNeed { return s.InformationNeeds },
		Fn: func(ctx context.Context, needs []pipeline.InformationNeed) (struct{ Complete bool }, error) {
			// Deterministic heuristic: complete when there is at least one
			// information need and every need carries an ID.
			for _, n := range needs {
				if n.ID == "" {
					return struct{ Complete bool }{false}, nil
				}
			}
			return struct{ Complete bool }{len(needs) > 0}, nil
		},
		Build: func(s *pipeline.State, out struct{ Complete bool }) pipeline.Update {
			return pipeline.Update{Metadata: pipeline.Metadata{"info_need_complete": out.Complete}}
		},
	}

	inner := phasegraph.FuncNode{
		ID: "3.1+3.2",
		Fn: func(ctx context.Context, s *pipeline.State) (pipeline.Update, error) {
			u, err := identify.Run(ctx, s)
			if err != nil {
				return pipeline.Update{}, err
			}
			pipeline.Merge(s, u)
			return completeness.Run(ctx, s)
		},
	}

	return &phasegraph.LoopNode{
		Inner: inner,
		Guard: guard,
		Converged: func(s *pipeline.State) bool {
			complete, _ := s.Metadata["info_need_complete"].(bool)
			return complete
		},
	}
}

type backfillOutput struct {
	Attributes map[string][]struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		TypeHint    string `json:"type_hint"`
	} `json:"attributes"`
}

// 3.3: for any entity with zero attributes (a gap the naming/cleanup loops
// of Phase 2 didn't close because the entity arrived late, e.g. via the
// connectivity-repair loop), re-run attribute discovery before ER compile.
func attributeBackfillAdapter(deps common.Deps) substep.Adapter[[]string, backfillOutput] {
	return substep.Adapter[[]string, backfillOutput]{
		StepID: "3.3",
		Extract: func(s *pipeline.State) []string {
			var thin []string
			for _, e := range s.Entities {
				if len(s.Attributes[e.Name]) == 0 {
					thin = append(thin, e.Name)
				}
			}
			return thin
		},
		Fn: func(ctx context.Context, thin []string) (backfillOutput, error) {
			if len(thin) == 0 {
				return backfillOutput{}, nil
			}
			return common.InvokeJSON[backfillOutput](ctx, deps.Invoker, "3.3",
				"List plausible attributes for each of these entities that were missed during attribute discovery.",
				"{{.entities}}", map[string]any{"entities": thin})
		},
		Build: func(s *pipeline.State, out backfillOutput) pipeline.Update {
			if len(out.Attributes) == 0 {
				return pipeline.Update{}
			}
			attrs := make(map[string][]pipeline.Attribute, len(s.Attributes))
			for k, v := range s.Attributes {
				attrs[k] = v
			}
			for entity, cands := range out.Attributes {
				list := make([]pipeline.Attribute, len(cands))
				for i, c := range cands {
					list[i] = pipeline.Attribute{Name: c.Name, Description: c.Description, TypeHint: c.TypeHint}
				}
				attrs[entity] = list
			}
			return pipeline.Update{Attributes: attrs}
		},
	}
}

// erDesign is the deterministic intermediate assembled at 3.4: entities
// paired with their resolved attributes and relations, stored under
// metadata.er_design for inspection/debugging before the lossier
// relational compile.
type erDesign struct {
	Entities  []pipeline.Entity              `json:"entities"`
	Relations []pipeline.Relation            `json:"relations"`
	Attributes map[string][]pipeline.Attribute `json:"attributes"`
}

// 3.4: deterministic ER-design assembly — no LLM call, just a consistent
// snapshot of the entity/relation/attribute graph as it stands.
func erCompileAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "3.4",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			design := erDesign{Entities: s.Entities, Relations: s.Relations, Attributes: s.Attributes}
			return pipeline.Update{Metadata: pipeline.Metadata{"er_design": design}}
		},
	}
}

type junctionNameOutput struct {
	Names map[string]string `json:"names"`
}

// 3.45: LLM-proposed junction-table names for many-to-many relations, keyed
// by the sorted-entities signature so phases/compile can look them up.
// Falls back (inside phases/compile) to the sorted-concatenation rule when
// the LLM returns nothing for a given signature (§9 "Junction-table naming").
func junctionNamingAdapter(deps common.Deps) substep.Adapter[[]pipeline.Relation, junctionNameOutput] {
	return substep.Adapter[[]pipeline.Relation, junctionNameOutput]{
		StepID: "3.45",
		Extract: func(s *pipeline.State) []pipeline.Relation {
			var manyToMany []pipeline.Relation
			for _, r := range s.Relations {
				if len(r.Entities) > 2 || strings.Contains(strings.ToLower(r.Type), "m:n") ||
					strings.Contains(strings.ToLower(r.Type), "many-to-many") {
					manyToMany = append(manyToMany, r)
				}
			}
			return manyToMany
		},
		Fn: func(ctx context.Context, relations []pipeline.Relation) (junctionNameOutput, error) {
			if len(relations) == 0 {
				return junctionNameOutput{Names: map[string]string{}}, nil
			}
			return common.InvokeJSON[junctionNameOutput](ctx, deps.Invoker, "3.45",
				"Propose a snake_case junction table name for each many-to-many relation.",
				"{{.relations}}", map[string]any{"relations": relations})
		},
		Build: func(s *pipeline.State, out junctionNameOutput) pipeline.Update {
			if len(out.Names) == 0 {
				return pipeline.Update{}
			}
			existing := s.Metadata.JunctionTableNames()
			merged := make(map[string]string, len(existing)+len(out.Names))
			for k, v := range existing {
				merged[k] = v
			}
			for k, v := range out.Names {
				merged[k] = normalizeJunctionName(v)
			}
			return pipeline.Update{Metadata: pipeline.Metadata{"junction_table_names": merged}}
		},
	}
}

func normalizeJunctionName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// 3.5: preliminary relational-schema compile, using the shared compiler
// also used by Phase 4's authoritative freeze. Its output here is
// non-final — Phase 4 recompiles the schema from the current graph and is
// the one that actually freezes it.
func relationalCompileAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "3.5",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			result := compile.Schema(s.Entities, s.Relations, s.Attributes, s.PrimaryKeys, s.Metadata.JunctionTableNames())
			sortedWarnings := append([]string(nil), result.Warnings...)
			sort.Strings(sortedWarnings)
			meta := pipeline.Metadata{}
			meta.SetRelationalSchema(result.Schema)
			return pipeline.Update{
				Warnings:    sortedWarnings,
				ForeignKeys: result.ForeignKeys,
				Metadata:    meta,
			}
		},
	}
}

// Gate exposes the Phase-3 gate for direct callers.
var Gate = gate.Registry[3]
