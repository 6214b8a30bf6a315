// Package phase5 implements the Data Type Assignment phase subgraph
// (§4.3 Phase 5): a deterministic dependency ordering pass, independent
// attribute typing fanned out, deterministic foreign-key type derivation,
// dependent (derived-formula) attribute typing fanned out in dependency
// order, and per-table nullability detection fanned out.
package phase5

import (
	"context"
	"strings"

	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 5,
		Nodes: []phasegraph.Node{
			common.Node(dependencyOrderAdapter()),     // 5.1
			independentTypeFanOut(deps),                // 5.2
			common.Node(fkTypeDerivationAdapter()),     // 5.3
			dependentTypeFanOut(deps),                  // 5.4
			nullabilityFanOut(deps),                    // 5.5
		},
	}
}

type attributeRef struct {
	Entity string
	Attr   pipeline.Attribute
}

// 5.1: deterministic split of every attribute into "independent" (typed
// directly from its description/type_hint) and "dependent" (typed from a
// derived formula, which must be typed after its referenced attributes).
func dependencyOrderAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "5.1",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			var independent, dependent []attributeRef
			for _, e := range s.Entities {
				for _, a := range s.Attributes[e.Name] {
					key := e.Name + "." + a.Name
					if _, ok := s.DerivedFormulas[key]; ok || a.IsDerived {
						dependent = append(dependent, attributeRef{Entity: e.Name, Attr: a})
						continue
					}
					if isForeignKeyColumn(s, e.Name, a.Name) {
						continue // typed by 5.3
					}
					independent = append(independent, attributeRef{Entity: e.Name, Attr: a})
				}
			}
			return pipeline.Update{Metadata: pipeline.Metadata{
				"independent_attributes": independent,
				"dependent_attributes":   dependent,
			}}
		},
	}
}

func isForeignKeyColumn(s *pipeline.State, entity, attr string) bool {
	for _, fk := range s.ForeignKeys {
		if fk.FromEntity != entity {
			continue
		}
		for _, fa := range fk.FromAttributes {
			if fa == attr {
				return true
			}
		}
	}
	return false
}

type typeOutput struct {
	SQLType string `json:"sql_type"`
}

// 5.2: one LLM call per independent attribute, fanned out.
func independentTypeFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "5.2",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			list, _ := s.Metadata["independent_attributes"].([]attributeRef)
			results := substep.FanOut(ctx, list, func(r attributeRef) string { return r.Entity + "." + r.Attr.Name }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, r attributeRef) (typeOutput, error) {
					return common.InvokeJSON[typeOutput](ctx, deps.Invoker, "5.2",
						"Assign the SQL column type for this attribute given its description and type hint.",
						"{{.attribute}}", map[string]any{
							"entity": r.Entity, "name": r.Attr.Name,
							"description": r.Attr.Description, "type_hint": r.Attr.TypeHint,
						})
				})

			types := cloneDataTypes(s.DataTypes)
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				entity, attr := splitRef(r.Key)
				ensureEntry(types, entity)
				types[entity][attr] = pipeline.DataTypeInfo{SQLType: r.Value.SQLType}
			}
			return []pipeline.Update{{StepID: "5.2", Warnings: errs, DataTypes: types}}, nil
		},
	}
}

// 5.3: deterministic FK type derivation — a foreign key column always
// takes the SQL type of the primary key column it references (§8
// invariant 4, the FK-type-match gate predicate).
func fkTypeDerivationAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "5.3",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			types := cloneDataTypes(s.DataTypes)
			for _, fk := range s.ForeignKeys {
				toTypes := types[fk.ToEntity]
				for i, fa := range fk.FromAttributes {
					if i >= len(fk.ToAttributes) {
						break
					}
					ta := fk.ToAttributes[i]
					info := toTypes[ta]
					ensureEntry(types, fk.FromEntity)
					types[fk.FromEntity][fa] = pipeline.DataTypeInfo{SQLType: info.SQLType, IsForeignKey: true}
				}
			}
			return pipeline.Update{DataTypes: types}
		},
	}
}

// 5.4: derived-formula attribute typing, fanned out after 5.2/5.3 have
// typed everything a formula could reference.
func dependentTypeFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "5.4",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			list, _ := s.Metadata["dependent_attributes"].([]attributeRef)
			results := substep.FanOut(ctx, list, func(r attributeRef) string { return r.Entity + "." + r.Attr.Name }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, r attributeRef) (typeOutput, error) {
					formula := s.DerivedFormulas[r.Entity+"."+r.Attr.Name]
					return common.InvokeJSON[typeOutput](ctx, deps.Invoker, "5.4",
						"Assign the SQL column type for this derived attribute given its formula.",
						"{{.attribute}}", map[string]any{
							"entity": r.Entity, "name": r.Attr.Name, "formula": formula.Formula,
						})
				})

			types := cloneDataTypes(s.DataTypes)
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				entity, attr := splitRef(r.Key)
				ensureEntry(types, entity)
				types[entity][attr] = pipeline.DataTypeInfo{SQLType: r.Value.SQLType}
			}
			return []pipeline.Update{{StepID: "5.4", Warnings: errs, DataTypes: types}}, nil
		},
	}
}

// 5.5: per-table nullability detection, fanned out one call per entity.
// Primary-key columns and every foreign-key column of the entity are
// pre-excluded from the "nullable" question entirely; relation
// participation (total or partial) is not consulted.
func nullabilityFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "5.5",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			entities := append([]pipeline.Entity(nil), s.Entities...)
			results := substep.FanOut(ctx, entities, func(e pipeline.Entity) string { return e.Name }, deps.MaxFanOutConcurrency,
				func(ctx context.Context, e pipeline.Entity) (nullabilityOutput, error) {
					excluded := excludedFromNullability(s, e.Name)
					candidates := make([]string, 0, len(s.Attributes[e.Name]))
					for _, a := range s.Attributes[e.Name] {
						if excluded[a.Name] {
							continue
						}
						candidates = append(candidates, a.Name)
					}
					if len(candidates) == 0 {
						return nullabilityOutput{Nullable: map[string]bool{}}, nil
					}
					return common.InvokeJSON[nullabilityOutput](ctx, deps.Invoker, "5.5",
						"Decide whether each of these attributes should be nullable.",
						"{{.attributes}}", map[string]any{"entity": e.Name, "attributes": candidates})
				})

			types := cloneDataTypes(s.DataTypes)
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				ensureEntry(types, r.Key)
				for attr, nullable := range r.Value.Nullable {
					info := types[r.Key][attr]
					info.Nullable = nullable
					types[r.Key][attr] = info
				}
			}
			return []pipeline.Update{{StepID: "5.5", Warnings: errs, DataTypes: types}}, nil
		},
	}
}

type nullabilityOutput struct {
	Nullable map[string]bool `json:"nullable"`
}

func excludedFromNullability(s *pipeline.State, entity string) map[string]bool {
	excluded := map[string]bool{}
	for _, pk := range s.PrimaryKeys[entity] {
		excluded[pk] = true
	}
	for _, fk := range s.ForeignKeys {
		if fk.FromEntity != entity {
			continue
		}
		for _, fa := range fk.FromAttributes {
			excluded[fa] = true
		}
	}
	return excluded
}

func cloneDataTypes(in map[string]map[string]pipeline.DataTypeInfo) map[string]map[string]pipeline.DataTypeInfo {
	out := make(map[string]map[string]pipeline.DataTypeInfo, len(in))
	for entity, attrs := range in {
		inner := make(map[string]pipeline.DataTypeInfo, len(attrs))
		for k, v := range attrs {
			inner[k] = v
		}
		out[entity] = inner
	}
	return out
}

func ensureEntry(m map[string]map[string]pipeline.DataTypeInfo, entity string) {
	if _, ok := m[entity]; !ok {
		m[entity] = map[string]pipeline.DataTypeInfo{}
	}
}

func splitRef(ref string) (entity, attr string) {
	idx := strings.LastIndex(ref, ".")
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}

// Gate exposes the Phase-5 gate for direct callers.
var Gate = gate.Registry[5]
