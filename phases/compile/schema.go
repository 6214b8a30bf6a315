// Package compile holds the deterministic ER-to-relational compilation
// logic shared by Phase 3's preliminary compile (3.5) and Phase 4's
// authoritative compile-and-freeze (4.1): table derivation from entities,
// FK placement policy for 1:1/1:N/M:N relations, junction-table naming
// fallback, and cyclic-FK breaking (§9 design notes).
package compile

import (
	"sort"
	"strings"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

// Result is the compiled schema plus any warnings produced along the way
// (cyclic-FK breaks, junction-naming fallbacks).
type Result struct {
	Schema      pipeline.RelationalSchema
	ForeignKeys []pipeline.ForeignKey
	Warnings    []string
}

// Schema compiles entities/relations/attributes/primaryKeys into a
// RelationalSchema, following the FK placement and junction-naming rules
// of §9.
func Schema(
	entities []pipeline.Entity,
	relations []pipeline.Relation,
	attributes map[string][]pipeline.Attribute,
	primaryKeys map[string][]string,
	junctionNames map[string]string,
) Result {
	tables := map[string]*pipeline.RelationalTable{}
	order := make([]string, 0, len(entities))

	for _, e := range entities {
		name := tableName(e.Name)
		cols := make([]string, 0, len(attributes[e.Name]))
		for _, a := range attributes[e.Name] {
			cols = append(cols, a.Name)
		}
		tables[e.Name] = &pipeline.RelationalTable{
			Name:         name,
			Columns:      cols,
			PrimaryKey:   primaryKeys[e.Name],
			SourceEntity: e.Name,
		}
		order = append(order, e.Name)
	}

	var fks []pipeline.ForeignKey
	var warnings []string
	var junctionOrder []string

	for _, r := range relations {
		if len(r.Entities) < 2 {
			continue
		}
		if len(r.Entities) > 2 || isManyToMany(r) {
			jt, jwarn := junctionTable(r, tables, primaryKeys, junctionNames)
			if jwarn != "" {
				warnings = append(warnings, jwarn)
			}
			tables[jt.Name] = jt
			junctionOrder = append(junctionOrder, jt.Name)
			fks = append(fks, jt.ForeignKeys...)
			continue
		}

		a, b := r.Entities[0], r.Entities[1]
		ta, oka := tables[a]
		tb, okb := tables[b]
		if !oka || !okb {
			continue
		}

		if isOneToOne(r) {
			// Open Question #3: lexically-first entity owns the FK.
			owner, referenced := ta, tb
			if strings.ToLower(b) < strings.ToLower(a) {
				owner, referenced = tb, ta
			}
			fk := referencingFK(owner, referenced)
			owner.ForeignKeys = append(owner.ForeignKeys, fk)
			owner.Columns = appendMissing(owner.Columns, fk.FromAttributes)
			fks = append(fks, fk)
			continue
		}

		// One-to-many: FK on the "many" side. Default: second listed entity
		// is the many side if cardinalities don't disambiguate.
		many, one := tb, ta
		if manySideIsFirst(r) {
			many, one = ta, tb
		}
		fk := referencingFK(many, one)
		many.ForeignKeys = append(many.ForeignKeys, fk)
		many.Columns = appendMissing(many.Columns, fk.FromAttributes)
		fks = append(fks, fk)
	}

	brokenWarnings := breakCycles(tables, order, junctionOrder)
	warnings = append(warnings, brokenWarnings...)

	schema := pipeline.RelationalSchema{}
	for _, name := range order {
		schema.Tables = append(schema.Tables, *tables[name])
	}
	for _, name := range junctionOrder {
		schema.Tables = append(schema.Tables, *tables[name])
	}

	return Result{Schema: schema, ForeignKeys: fks, Warnings: warnings}
}

func tableName(entity string) string {
	return toSnakeCase(entity)
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

func isOneToOne(r pipeline.Relation) bool {
	t := strings.ToLower(r.Type)
	return strings.Contains(t, "1:1") || strings.Contains(t, "one-to-one") || strings.Contains(t, "one_to_one")
}

func isManyToMany(r pipeline.Relation) bool {
	t := strings.ToLower(r.Type)
	return strings.Contains(t, "m:n") || strings.Contains(t, "many-to-many") || strings.Contains(t, "many_to_many")
}

func manySideIsFirst(r pipeline.Relation) bool {
	if len(r.Entities) < 2 {
		return false
	}
	card, ok := r.EntityCardinalities[r.Entities[0]]
	return ok && strings.Contains(strings.ToLower(card), "many")
}

func referencingFK(from, to *pipeline.RelationalTable) pipeline.ForeignKey {
	toPK := to.PrimaryKey
	if len(toPK) == 0 {
		toPK = []string{"id"}
	}
	fromAttrs := make([]string, len(toPK))
	for i, pk := range toPK {
		fromAttrs[i] = to.SourceEntity + "_" + pk
	}
	return pipeline.ForeignKey{
		FromEntity:     from.SourceEntity,
		FromAttributes: fromAttrs,
		ToEntity:       to.SourceEntity,
		ToAttributes:   toPK,
	}
}

func appendMissing(cols []string, add []string) []string {
	existing := map[string]bool{}
	for _, c := range cols {
		existing[c] = true
	}
	for _, a := range add {
		if !existing[a] {
			cols = append(cols, a)
			existing[a] = true
		}
	}
	return cols
}

// junctionTable builds the M:N (or higher-arity) table: one FK column per
// participating entity's PK, a composite primary key over all FK columns,
// and a name from junctionNames (Phase 3.45's output) falling back to the
// sorted concatenation of entity names (§9 "Junction-table naming").
func junctionTable(
	r pipeline.Relation,
	tables map[string]*pipeline.RelationalTable,
	primaryKeys map[string][]string,
	junctionNames map[string]string,
) (*pipeline.RelationalTable, string) {
	sig := junctionSignature(r.Entities)
	name, ok := junctionNames[sig]
	warn := ""
	if !ok || name == "" {
		name = fallbackJunctionName(r.Entities)
		warn = "junction table naming fell back to sorted-entity concatenation for " + sig
	}

	var cols []string
	var fks []pipeline.ForeignKey
	var pk []string
	for _, ent := range r.Entities {
		t, ok := tables[ent]
		if !ok {
			continue
		}
		toPK := primaryKeys[ent]
		if len(toPK) == 0 {
			toPK = []string{"id"}
		}
		for _, p := range toPK {
			col := t.SourceEntity + "_" + p
			cols = append(cols, col)
			pk = append(pk, col)
		}
		fks = append(fks, pipeline.ForeignKey{
			FromEntity:     name,
			FromAttributes: colsFor(t.SourceEntity, toPK),
			ToEntity:       ent,
			ToAttributes:   toPK,
		})
	}

	return &pipeline.RelationalTable{
		Name:        name,
		Columns:     cols,
		PrimaryKey:  pk,
		ForeignKeys: fks,
		SourceEntity: name,
	}, warn
}

func colsFor(entity string, pks []string) []string {
	out := make([]string, len(pks))
	for i, p := range pks {
		out[i] = entity + "_" + p
	}
	return out
}

func junctionSignature(entities []string) string {
	sorted := append([]string(nil), entities...)
	sort.Strings(sorted)
	for i, e := range sorted {
		sorted[i] = strings.ToLower(e)
	}
	return strings.Join(sorted, "|")
}

// fallbackJunctionName is the literal sorted concatenation named in §9 as
// the degenerate case (e.g. "order_product" is fine; the design note's
// example of what NOT to leave as the *only* strategy was the unsorted,
// un-snake-cased concatenation "Order_Product").
func fallbackJunctionName(entities []string) string {
	sorted := append([]string(nil), entities...)
	sort.Strings(sorted)
	parts := make([]string, len(sorted))
	for i, e := range sorted {
		parts[i] = toSnakeCase(e)
	}
	return strings.Join(parts, "_")
}

// breakCycles detects cycles in the FK reference graph and drops one FK
// edge per cycle (with a warning) so the schema remains a DAG for DDL
// emission ordering (§9 "Cyclic FK graphs").
func breakCycles(tables map[string]*pipeline.RelationalTable, order, junctionOrder []string) []string {
	var warnings []string
	all := append(append([]string(nil), order...), junctionOrder...)

	visited := map[string]int{} // 0=unvisited,1=in-stack,2=done
	var stack []string

	var visit func(name string) bool
	visit = func(name string) bool {
		visited[name] = 1
		stack = append(stack, name)
		t := tables[name]
		if t != nil {
			for i := 0; i < len(t.ForeignKeys); i++ {
				fk := t.ForeignKeys[i]
				target := fk.ToEntity
				if visited[target] == 1 {
					// Cycle found: drop this FK.
					warnings = append(warnings, "dropped cyclic foreign key "+name+" -> "+target+" (§9 cyclic FK breaking)")
					t.ForeignKeys = append(t.ForeignKeys[:i], t.ForeignKeys[i+1:]...)
					i--
					continue
				}
				if visited[target] == 0 {
					if visit(target) {
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		visited[name] = 2
		return false
	}

	for _, name := range all {
		if visited[name] == 0 {
			visit(name)
		}
	}
	return warnings
}
