// Package sqlengine implements the consumed SQL syntactic validator of
// §6.1: an in-memory engine that creates tables from DDL strings (no rows)
// and validates SELECT statements by preparing them. Backed by
// modernc.org/sqlite — a pure-Go, cgo-free SQLite driver — so each phase
// invocation can scope and dispose of its own ephemeral instance (§5
// "shared resources").
package sqlengine

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// TableResult is the outcome of creating one table from a DDL statement.
type TableResult struct {
	Statement string
	Created   bool
	Error     string
}

// Engine wraps one in-memory SQLite connection, scoped to a single phase
// invocation (Phase 6 schema creation, Phase 7 SELECT validation) and
// disposed via Close after use.
type Engine struct {
	db *sql.DB
}

// New opens a fresh in-memory database. dataSourcePath, if non-empty,
// places the database file alongside run artifacts instead of purely
// in-memory (§6.4 RUN_DIR); an empty path uses ":memory:".
func New(dataSourcePath string) (*Engine, error) {
	dsn := ":memory:"
	if dataSourcePath != "" {
		dsn = dataSourcePath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: open failed: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close disposes the underlying connection.
func (e *Engine) Close() error { return e.db.Close() }

// CreateTables executes each DDL statement in order, tolerating individual
// failures (§7 "DDL executes" invariant is checked by the caller against
// the Created flags, not by aborting early — a cyclic-FK statement that
// had its FK dropped, §9, should still create successfully).
func (e *Engine) CreateTables(ddl []string) []TableResult {
	results := make([]TableResult, len(ddl))
	for i, stmt := range ddl {
		_, err := e.db.Exec(stmt)
		if err != nil {
			results[i] = TableResult{Statement: stmt, Created: false, Error: err.Error()}
			continue
		}
		results[i] = TableResult{Statement: stmt, Created: true}
	}
	return results
}

// ValidateSelect prepares sql without executing it, returning (valid,
// error_message) per §6.1. SQLite's Prepare step alone checks syntax and
// schema references (unknown table/column), which is sufficient for the
// "syntactic validation on an in-memory engine" non-goal boundary of §1.
func (e *Engine) ValidateSelect(query string) (bool, string) {
	stmt, err := e.db.Prepare(query)
	if err != nil {
		return false, err.Error()
	}
	_ = stmt.Close()
	return true, ""
}
