// Package phase4 implements the Relational Schema Design phase (§4.3 Phase
// 4): a single deterministic node that recompiles the authoritative
// relational schema (reusing phases/compile, the same compiler Phase 3's
// preliminary 3.5 step used) and freezes it into metadata.frozen_schema.
// After this phase exits, the schema is immutable except through recorded
// schema_modifications entries (§3.3, pkg/gate's freeze.go).
package phase4

import (
	"context"
	"sort"

	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
	"github.com/codeready-toolchain/nl2schema/phases/compile"
)

func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 4,
		Nodes: []phasegraph.Node{
			common.Node(freezeAdapter()), // 4.1
		},
	}
}

// 4.1: authoritative compile-and-freeze. Re-derives the schema from the
// current entity/attribute/relation graph, rather than reusing 3.5's
// preliminary compile, and snapshots it.
func freezeAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "4.1",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			result := compile.Schema(s.Entities, s.Relations, s.Attributes, s.PrimaryKeys, s.Metadata.JunctionTableNames())

			existing := map[string]bool{}
			for _, fk := range s.ForeignKeys {
				existing[fkSignature(fk)] = true
			}
			var newFKs []pipeline.ForeignKey
			for _, fk := range result.ForeignKeys {
				sig := fkSignature(fk)
				if existing[sig] {
					continue
				}
				existing[sig] = true
				newFKs = append(newFKs, fk)
			}

			warnings := append([]string(nil), result.Warnings...)
			sort.Strings(warnings)

			meta := pipeline.Metadata{}
			meta.SetRelationalSchema(result.Schema)
			meta.Freeze(result.Schema)

			return pipeline.Update{
				Warnings:    warnings,
				ForeignKeys: newFKs,
				Metadata:    meta,
			}
		},
	}
}

func fkSignature(fk pipeline.ForeignKey) string {
	return fk.FromEntity + "|" + join(fk.FromAttributes) + "|" + fk.ToEntity + "|" + join(fk.ToAttributes)
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// Gate exposes the Phase-4 gate for direct callers.
var Gate = gate.Registry[4]
