package pipeline

import "encoding/json"

// Metadata is the flexible sub-record described in §3.1: it carries
// intermediate artifacts that aren't promoted to top-level State fields
// (relational_schema, frozen_schema, er_design, junction_table_names,
// per-phase loop iteration counters, and transient fan-out results pending
// consolidation, such as "step_1_5_result"). It merges by shallow key union
// (§3.2): concurrent writers may write disjoint keys in the same superstep.
type Metadata map[string]any

// Clone deep-copies via JSON round-trip, so later mutation of the copy can
// never reach back into m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		// Metadata only ever holds JSON-representable values (adapter
		// boundary contract, §6.3); a marshal failure means a substep
		// violated that contract.
		panic("pipeline: metadata is not JSON-representable: " + err.Error())
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("pipeline: metadata clone round-trip failed: " + err.Error())
	}
	return out
}

const (
	keyRelationalSchema    = "relational_schema"
	keyFrozenSchema        = "frozen_schema"
	keyERDesign            = "er_design"
	keyJunctionTableNames  = "junction_table_names"
	keyOrphanEntities      = "orphan_entities"
	keySchemaModifications = "schema_modifications"
)

// RelationalSchema returns metadata.relational_schema, decoded into the
// typed form, if present.
func (m Metadata) RelationalSchema() (*RelationalSchema, bool) {
	return decodeInto[RelationalSchema](m, keyRelationalSchema)
}

// SetRelationalSchema stores the compiled relational schema (Phase 4).
func (m Metadata) SetRelationalSchema(s RelationalSchema) {
	m[keyRelationalSchema] = s
}

// FrozenSchema returns the Phase-4-exit snapshot, if the freeze has happened.
func (m Metadata) FrozenSchema() (*RelationalSchema, bool) {
	return decodeInto[RelationalSchema](m, keyFrozenSchema)
}

// Freeze snapshots the current relational schema into metadata.frozen_schema.
// Called exactly once, at the end of Phase 4 (§3.3).
func (m Metadata) Freeze(s RelationalSchema) {
	m[keyFrozenSchema] = s.clone()
}

func (s RelationalSchema) clone() RelationalSchema {
	raw, _ := json.Marshal(s)
	var out RelationalSchema
	_ = json.Unmarshal(raw, &out)
	return out
}

// JunctionTableNames returns the Phase-3.45 naming decisions, keyed by the
// sorted-entities signature of the many-to-many relation they name.
func (m Metadata) JunctionTableNames() map[string]string {
	v, _ := decodeInto[map[string]string](m, keyJunctionTableNames)
	if v == nil {
		return map[string]string{}
	}
	return *v
}

// OrphanEntities returns the entities Phase 1.10's connectivity check found
// disconnected from the relation graph.
func (m Metadata) OrphanEntities() []string {
	v, _ := decodeInto[[]string](m, keyOrphanEntities)
	if v == nil {
		return nil
	}
	return *v
}

// IterationsOf reads metadata.<loop>_iterations, defaulting to 0.
func (m Metadata) IterationsOf(loop string) int {
	v, ok := m[loop+"_iterations"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// ForcedPass reports whether the named loop set its forced-pass flag
// (e.g. "schema_connectivity_forced_passed").
func (m Metadata) ForcedPass(flag string) bool {
	v, ok := m[flag]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SchemaModifications returns explicitly recorded post-freeze schema
// mutations (Open Question #2: surrogate-key injection after freeze is
// tolerated only when recorded here).
func (m Metadata) SchemaModifications() []string {
	v, _ := decodeInto[[]string](m, keySchemaModifications)
	if v == nil {
		return nil
	}
	return *v
}

func decodeInto[T any](m Metadata, key string) (*T, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	if t, ok := v.(T); ok {
		return &t, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return &out, true
}
