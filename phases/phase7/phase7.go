// Package phase7 implements the Information Mining phase subgraph (§4.3
// Phase 7): information-need identification via a convergence loop,
// followed by per-need SQL generation with executable validation against
// the schema compiled in Phase 6, retried up to
// convergence.Budgets.SQLValidationPerNeed times per need. Needs that never
// validate are dropped with a recorded validation_error (§8 scenario S5): a
// warning per need, and the rejected needs under
// metadata.information_needs_rejected;
// Phase 7 never rewrites the frozen schema to make a need satisfiable.
//
// InformationNeeds is an append-only State field (§3.2), so candidates
// identified by 7.1 are held in metadata until 7.2 resolves each one and
// appends the final (and only) pipeline.InformationNeed entry per ID —
// nothing is ever appended twice.
package phase7

import (
	"context"
	"fmt"
	"sort"

	"github.com/codeready-toolchain/nl2schema/pkg/convergence"
	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

const keyNeedCandidates = "information_need_candidates"

func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 7,
		Nodes: []phasegraph.Node{
			identifyLoop(deps),     // 7.1
			sqlGenerateFanOut(deps), // 7.2
		},
	}
}

type needCandidate struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type identifyOutput struct {
	Needs []needCandidate `json:"needs"`
}

func candidateMap(s *pipeline.State) map[string]string {
	out := map[string]string{}
	raw, ok := s.Metadata[keyNeedCandidates]
	if !ok {
		return out
	}
	switch v := raw.(type) {
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	case map[string]any:
		for k, val := range v {
			if str, ok := val.(string); ok {
				out[k] = str
			}
		}
	}
	return out
}

// 7.1: re-identify/refine information needs against the now-frozen schema,
// looping until no new candidate IDs surface or the budget is exhausted.
func identifyLoop(deps common.Deps) *phasegraph.LoopNode {
	guard := convergence.NewGuard("information_mining_identify", convergence.Budgets.InfoNeedIdentify)

	identify := substep.Adapter[*pipeline.RelationalSchema, identifyOutput]{
		StepID: "7.1",
		Extract: func(s *pipeline.State) *pipeline.RelationalSchema {
			schema, _ := s.Metadata.FrozenSchema()
			return schema
		},
		Fn: func(ctx context.Context, schema *pipeline.RelationalSchema) (identifyOutput, error) {
			return common.InvokeJSON[identifyOutput](ctx, deps.Invoker, "7.1",
				"Given the finalized relational schema, identify information needs (business questions) it should answer.",
				"{{.schema}}", map[string]any{"schema": schema})
		},
		Build: func(s *pipeline.State, out identifyOutput) pipeline.Update {
			merged := candidateMap(s)
			before := len(merged)
			for _, c := range out.Needs {
				if _, ok := merged[c.ID]; ok {
					continue
				}
				merged[c.ID] = c.Description
			}
			return pipeline.Update{
				Metadata: pipeline.Metadata{
					keyNeedCandidates:      merged,
					"information_mining_new_count": len(merged) - before,
				},
			}
		},
	}

	return &phasegraph.LoopNode{
		Inner: common.Node(identify),
		Guard: guard,
		Converged: func(s *pipeline.State) bool {
			n, _ := s.Metadata["information_mining_new_count"].(int)
			return n == 0
		},
	}
}

type sqlGenOutput struct {
	SQL string `json:"sql"`
}

// validator is the subset of sqlengine.Engine this phase needs; narrowed
// to keep resolveNeed independently testable with a fake.
type validator interface {
	ValidateSelect(query string) (bool, string)
}

// 7.2: one fan-out element per candidate need; each element retries its
// own SQL generation up to SQLValidationPerNeed times before giving up.
// Its output is the one and only append to s.InformationNeeds per need ID.
func sqlGenerateFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "7.2",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			candidates := candidateMap(s)
			ids := make([]string, 0, len(candidates))
			for id := range candidates {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			needs := make([]pipeline.InformationNeed, len(ids))
			for i, id := range ids {
				needs[i] = pipeline.InformationNeed{ID: id, Description: candidates[id]}
			}

			engine, err := deps.NewSQLEngine()
			if err != nil {
				return nil, fmt.Errorf("7.2: opening sql engine: %w", err)
			}
			defer engine.Close()
			engine.CreateTables(s.DDLStatements)

			results := substep.FanOut(ctx, needs, func(n pipeline.InformationNeed) string { return n.ID }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, n pipeline.InformationNeed) (pipeline.InformationNeed, error) {
					return resolveNeed(ctx, deps, engine, n)
				})

			var resolved, rejected []pipeline.InformationNeed
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				if !r.Value.Valid {
					errs = append(errs, fmt.Sprintf("7.2: information need %s dropped: %s", r.Value.ID, r.Value.ValidationError))
					rejected = append(rejected, r.Value)
					continue
				}
				resolved = append(resolved, r.Value)
			}
			return []pipeline.Update{{
				StepID:           "7.2",
				Warnings:         errs,
				InformationNeeds: resolved,
				Metadata:         pipeline.Metadata{"information_needs_rejected": rejected},
			}}, nil
		},
	}
}

// resolveNeed generates and validates SQL for one information need,
// retrying up to convergence.Budgets.SQLValidationPerNeed times (§8 S5).
func resolveNeed(ctx context.Context, deps common.Deps, engine validator, n pipeline.InformationNeed) (pipeline.InformationNeed, error) {
	var lastErr string
	for attempt := 0; attempt < convergence.Budgets.SQLValidationPerNeed; attempt++ {
		out, err := common.InvokeJSON[sqlGenOutput](ctx, deps.Invoker, "7.2",
			"Generate a SQL SELECT statement answering this information need.",
			"{{.need}}", map[string]any{"description": n.Description, "previous_error": lastErr})
		if err != nil {
			return pipeline.InformationNeed{}, err
		}
		ok, errMsg := engine.ValidateSelect(out.SQL)
		n.Retries = attempt + 1
		if ok {
			n.SQL = out.SQL
			n.Valid = true
			n.ValidationError = ""
			return n, nil
		}
		lastErr = errMsg
	}
	n.Valid = false
	n.ValidationError = lastErr
	n.SQL = ""
	return n, nil
}

// Gate exposes the Phase-7 gate for direct callers.
var Gate = gate.Registry[7]
