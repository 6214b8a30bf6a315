// Package phase6 implements the DDL Generation phase subgraph (§4.3 Phase
// 6): deterministic CREATE TABLE compilation from the frozen schema and
// resolved data types, syntax/schema validation, and schema creation
// against a scoped pkg/sqlengine instance.
package phase6

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codeready-toolchain/nl2schema/pkg/gate"
	"github.com/codeready-toolchain/nl2schema/pkg/phasegraph"
	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/substep"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

func Build(deps common.Deps) phasegraph.Graph {
	return phasegraph.Graph{
		Phase: 6,
		Nodes: []phasegraph.Node{
			common.Node(ddlCompileAdapter()),        // 6.1
			common.Node(ddlValidateAdapter(deps)),    // 6.2
			common.Node(schemaCreateAdapter(deps)),   // 6.3
		},
	}
}

// 6.1: deterministic DDL compilation from metadata.frozen_schema and the
// resolved s.DataTypes.
func ddlCompileAdapter() substep.Adapter[struct{}, struct{}] {
	return substep.Adapter[struct{}, struct{}]{
		StepID:  "6.1",
		Extract: func(s *pipeline.State) struct{} { return struct{}{} },
		Fn:      func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			schema, ok := s.Metadata.FrozenSchema()
			if !ok {
				return pipeline.Update{Errors: []string{"6.1: no frozen schema to compile DDL from"}}
			}
			var statements []string
			for _, t := range schema.Tables {
				statements = append(statements, compileCreateTable(t, s))
			}
			return pipeline.Update{DDLStatements: statements}
		},
	}
}

func compileCreateTable(t pipeline.RelationalTable, s *pipeline.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.Name)

	types := s.DataTypes[t.SourceEntity]
	lines := make([]string, 0, len(t.Columns)+2)
	for _, col := range t.Columns {
		sqlType := "TEXT"
		nullable := true
		if info, ok := types[col]; ok {
			if info.SQLType != "" {
				sqlType = info.SQLType
			}
			nullable = info.Nullable
		}
		line := fmt.Sprintf("  %s %s", col, sqlType)
		if isPrimaryKeyColumn(t, col) || !nullable {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	if len(t.PrimaryKey) > 0 {
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", ")))
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s(%s)",
			strings.Join(fk.FromAttributes, ", "), toSnakeCase(fk.ToEntity), strings.Join(fk.ToAttributes, ", ")))
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);")
	return b.String()
}

func isPrimaryKeyColumn(t pipeline.RelationalTable, col string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == col {
			return true
		}
	}
	return false
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

// 6.2: syntax/schema validation of the compiled DDL against a throwaway
// in-memory engine, independent of the schema creation in 6.3. Failing
// statements are reported as warnings.
func ddlValidateAdapter(deps common.Deps) substep.Adapter[[]string, []string] {
	return substep.Adapter[[]string, []string]{
		StepID:  "6.2",
		Extract: func(s *pipeline.State) []string { return s.DDLStatements },
		Fn: func(ctx context.Context, statements []string) ([]string, error) {
			engine, err := deps.NewSQLEngine()
			if err != nil {
				return []string{fmt.Sprintf("6.2: opening sql engine: %v", err)}, nil
			}
			defer engine.Close()
			var failures []string
			for _, r := range engine.CreateTables(statements) {
				if !r.Created {
					failures = append(failures, fmt.Sprintf("6.2: statement failed validation: %s", r.Error))
				}
			}
			return failures, nil
		},
		Build: func(s *pipeline.State, failures []string) pipeline.Update {
			return pipeline.Update{Warnings: failures}
		},
	}
}

// 6.3: execute the compiled DDL against a scoped sqlengine.Engine,
// recording per-statement outcomes as warnings for any that fail (a
// failure here is non-fatal: cyclic-FK-dropped statements are expected to
// succeed, but a genuinely malformed statement shouldn't abort the run).
func schemaCreateAdapter(deps common.Deps) substep.Adapter[[]string, struct{}] {
	return substep.Adapter[[]string, struct{}]{
		StepID:  "6.3",
		Extract: func(s *pipeline.State) []string { return s.DDLStatements },
		Fn: func(ctx context.Context, statements []string) (struct{}, error) {
			return struct{}{}, nil
		},
		Build: func(s *pipeline.State, _ struct{}) pipeline.Update {
			engine, err := deps.NewSQLEngine()
			if err != nil {
				return pipeline.Update{Errors: []string{fmt.Sprintf("6.3: opening sql engine: %v", err)}}
			}
			defer engine.Close()

			results := engine.CreateTables(s.DDLStatements)
			var warnings []string
			for _, r := range results {
				if !r.Created {
					warnings = append(warnings, fmt.Sprintf("6.3: statement failed to apply: %s", r.Error))
				}
			}
			sort.Strings(warnings)
			return pipeline.Update{Warnings: warnings}
		},
	}
}

// Gate exposes the Phase-6 gate for direct callers.
var Gate = gate.Registry[6]
