// Package phase9 implements the Generation Strategies phase subgraph
// (§4.3 Phase 9): numerical range, text-generation, and boolean-dependency
// recipes per column, data-volume specs, partitioning conditional on a
// volume threshold, and final distribution compilation into
// s.GenerationStrategies.
package phase9

import (
	"context"

	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

// volumePartitionThreshold is the row-count estimate at or above which 9.5
// attaches a partitioning recommendation (high-cardinality entities only).
const volumePartitionThreshold = 1_000_000

func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 9,
		Nodes: []phasegraph.Node{
			numericalRangeFanOut(deps),   // 9.1
			textGenerationFanOut(deps),    // 9.2
			booleanDependencyFanOut(deps), // 9.3
			common.Node(dataVolumeAdapter(deps)), // 9.4
			common.Node(partitioningAdapter(deps)), // 9.5
			common.Node(distributionCompileAdapter()), // 9.6
		},
	}
}

type rangeOutput struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// 9.1: numerical-range recipes, fanned out over numeric-typed attributes.
func numericalRangeFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "9.1",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			targets := numericAttributes(s)
			results := substep.FanOut(ctx, targets, refKey, deps.MaxFanOutConcurrency,
				func(ctx context.Context, r attrRef) (rangeOutput, error) {
					return common.InvokeJSON[rangeOutput](ctx, deps.Invoker, "9.1",
						"Propose a realistic numerical range for this attribute.",
						"{{.attribute}}", map[string]any{"entity": r.Entity, "attribute": r.Attribute})
				})
			strategies := cloneStrategies(s.GenerationStrategies)
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				entity, attr := splitRefKey(r.Key)
				ensureStrategyEntry(strategies, entity)
				strategies[entity][attr] = pipeline.GenerationStrategy{
					Kind:   "numerical_range",
					Params: map[string]any{"min": r.Value.Min, "max": r.Value.Max},
				}
			}
			return []pipeline.Update{{StepID: "9.1", Warnings: errs, GenerationStrategies: strategies}}, nil
		},
	}
}

type textOutput struct {
	Pattern string `json:"pattern"`
}

// 9.2: text-generation recipes, fanned out over text-typed attributes.
func textGenerationFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "9.2",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			targets := textAttributes(s)
			results := substep.FanOut(ctx, targets, refKey, deps.MaxFanOutConcurrency,
				func(ctx context.Context, r attrRef) (textOutput, error) {
					return common.InvokeJSON[textOutput](ctx, deps.Invoker, "9.2",
						"Propose a realistic text-generation pattern for this attribute.",
						"{{.attribute}}", map[string]any{"entity": r.Entity, "attribute": r.Attribute})
				})
			strategies := cloneStrategies(s.GenerationStrategies)
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				entity, attr := splitRefKey(r.Key)
				ensureStrategyEntry(strategies, entity)
				strategies[entity][attr] = pipeline.GenerationStrategy{
					Kind:   "text_pattern",
					Params: map[string]any{"pattern": r.Value.Pattern},
				}
			}
			return []pipeline.Update{{StepID: "9.2", Warnings: errs, GenerationStrategies: strategies}}, nil
		},
	}
}

type boolOutput struct {
	TrueProbability float64 `json:"true_probability"`
}

// 9.3: boolean-dependency recipes, fanned out over boolean-typed
// attributes (probability of true, independent of other columns).
func booleanDependencyFanOut(deps common.Deps) phasegraph.FanOutNode {
	return phasegraph.FanOutNode{
		ID: "9.3",
		Dispatch: func(ctx context.Context, s *pipeline.State) ([]pipeline.Update, error) {
			targets := booleanAttributes(s)
			results := substep.FanOut(ctx, targets, refKey, deps.MaxFanOutConcurrency,
				func(ctx context.Context, r attrRef) (boolOutput, error) {
					return common.InvokeJSON[boolOutput](ctx, deps.Invoker, "9.3",
						"Propose a true-probability for this boolean attribute.",
						"{{.attribute}}", map[string]any{"entity": r.Entity, "attribute": r.Attribute})
				})
			strategies := cloneStrategies(s.GenerationStrategies)
			var errs []string
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err.Error())
					continue
				}
				entity, attr := splitRefKey(r.Key)
				ensureStrategyEntry(strategies, entity)
				strategies[entity][attr] = pipeline.GenerationStrategy{
					Kind:   "boolean",
					Params: map[string]any{"true_probability": r.Value.TrueProbability},
				}
			}
			return []pipeline.Update{{StepID: "9.3", Warnings: errs, GenerationStrategies: strategies}}, nil
		},
	}
}

type volumeOutput struct {
	EstimatedRows int `json:"estimated_rows"`
}

// 9.4: per-entity data-volume estimate from the Phase-1 cardinality class
// (recorded by 1.8 under metadata.step_1_8_entities), stored in metadata for
// 9.5's partitioning decision.
func dataVolumeAdapter(deps common.Deps) substep.Adapter[[]pipeline.Entity, struct{}] {
	return substep.Adapter[[]pipeline.Entity, struct{}]{
		StepID:  "9.4",
		Extract: func(s *pipeline.State) []pipeline.Entity { return s.Entities },
		Fn:      func(ctx context.Context, _ []pipeline.Entity) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			cardinalities := map[string]string{}
			if ents, ok := s.Metadata["step_1_8_entities"].([]pipeline.Entity); ok {
				for _, e := range ents {
					cardinalities[e.Name] = e.Cardinality
				}
			}
			volumes := map[string]int{}
			for _, e := range s.Entities {
				c := e.Cardinality
				if c == "" {
					c = cardinalities[e.Name]
				}
				volumes[e.Name] = estimateVolume(c)
			}
			return pipeline.Update{Metadata: pipeline.Metadata{"entity_volume_estimates": volumes}}
		},
	}
}

func estimateVolume(cardinality string) int {
	switch cardinality {
	case "high":
		return 2_000_000
	case "medium":
		return 50_000
	default:
		return 1_000
	}
}

// 9.5: attach a partitioning recommendation to entities whose estimated
// volume meets volumePartitionThreshold (§4.3 "conditional on volume ≥
// threshold").
func partitioningAdapter(deps common.Deps) substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "9.5",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			volumes, _ := s.Metadata["entity_volume_estimates"].(map[string]int)
			partitioned := map[string]bool{}
			for entity, vol := range volumes {
				if vol >= volumePartitionThreshold {
					partitioned[entity] = true
				}
			}
			return pipeline.Update{Metadata: pipeline.Metadata{"partitioned_entities": partitioned}}
		},
	}
}

// 9.6: final distribution compilation — ensures every entity has a
// generation_strategies entry (even an empty one) so gate(9) passes and
// downstream consumers can index safely; attaches the volume/partition
// metadata as a synthetic "_volume" pseudo-column strategy.
func distributionCompileAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "9.6",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			strategies := cloneStrategies(s.GenerationStrategies)
			volumes, _ := s.Metadata["entity_volume_estimates"].(map[string]int)
			partitioned, _ := s.Metadata["partitioned_entities"].(map[string]bool)
			for _, e := range s.Entities {
				ensureStrategyEntry(strategies, e.Name)
				params := map[string]any{"estimated_rows": volumes[e.Name]}
				if partitioned[e.Name] {
					params["partitioned"] = true
				}
				strategies[e.Name]["_volume"] = pipeline.GenerationStrategy{Kind: "volume", Params: params}
			}
			return pipeline.Update{GenerationStrategies: strategies}
		},
	}
}

type attrRef struct {
	Entity    string
	Attribute string
}

func refKey(r attrRef) string { return r.Entity + "." + r.Attribute }

func splitRefKey(key string) (entity, attr string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func numericAttributes(s *pipeline.State) []attrRef {
	var out []attrRef
	for _, e := range s.Entities {
		for attr, info := range s.DataTypes[e.Name] {
			if isNumericSQLType(info.SQLType) {
				out = append(out, attrRef{Entity: e.Name, Attribute: attr})
			}
		}
	}
	return out
}

func textAttributes(s *pipeline.State) []attrRef {
	var out []attrRef
	for _, e := range s.Entities {
		for attr, info := range s.DataTypes[e.Name] {
			if isTextSQLType(info.SQLType) {
				out = append(out, attrRef{Entity: e.Name, Attribute: attr})
			}
		}
	}
	return out
}

func booleanAttributes(s *pipeline.State) []attrRef {
	var out []attrRef
	for _, e := range s.Entities {
		for attr, info := range s.DataTypes[e.Name] {
			if isBooleanSQLType(info.SQLType) {
				out = append(out, attrRef{Entity: e.Name, Attribute: attr})
			}
		}
	}
	return out
}

func isNumericSQLType(t string) bool {
	switch t {
	case "INTEGER", "BIGINT", "NUMERIC", "DECIMAL", "FLOAT", "DOUBLE", "REAL":
		return true
	default:
		return false
	}
}

func isTextSQLType(t string) bool {
	switch t {
	case "TEXT", "VARCHAR", "CHAR":
		return true
	default:
		return false
	}
}

func isBooleanSQLType(t string) bool {
	return t == "BOOLEAN" || t == "BOOL"
}

func cloneStrategies(in map[string]map[string]pipeline.GenerationStrategy) map[string]map[string]pipeline.GenerationStrategy {
	out := make(map[string]map[string]pipeline.GenerationStrategy, len(in))
	for entity, attrs := range in {
		inner := make(map[string]pipeline.GenerationStrategy, len(attrs))
		for k, v := range attrs {
			inner[k] = v
		}
		out[entity] = inner
	}
	return out
}

func ensureStrategyEntry(m map[string]map[string]pipeline.GenerationStrategy, entity string) {
	if _, ok := m[entity]; !ok {
		m[entity] = map[string]pipeline.GenerationStrategy{}
	}
}

// Gate exposes the Phase-9 gate for direct callers.
var Gate = gate.Registry[9]
