package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/nl2schema/pkg/llm"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

// librarySceneInvoker builds the deterministic LLM stub for the "library"
// scenario (§8 S1): books, authors, and members who borrow books. It
// covers every substep of the Phase 1 subgraph so RunUpTo(..., 1) can run
// start to finish without a live LLM backend.
func librarySceneInvoker() *llm.StubInvoker {
	inv := llm.NewStubInvoker()
	inv.On("1.1", json.RawMessage(`{"domain":"library","explicit":true}`))
	inv.On("1.2", json.RawMessage(`{"candidates":["Book","Author","Member"]}`))
	inv.On("1.4", json.RawMessage(`{"entities":[
		{"name":"Book","description":"a book held by the library"},
		{"name":"Author","description":"a person who writes books"},
		{"name":"Member","description":"a person who borrows books"}
	]}`))
	inv.On("1.5", json.RawMessage(`{"relations":[
		{"entities":["Book","Author"],"type":"many-to-many","description":"written by"},
		{"entities":["Member","Book"],"type":"many-to-many","description":"borrows"}
	]}`))
	inv.On("1.6", json.RawMessage(`{"entities":[]}`))
	inv.OnFunc("1.8", func(req llm.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"cardinality":"medium"}`), nil
	})
	// No further relations needed: 1.5 already connected every entity.
	inv.On("1.9", json.RawMessage(`{"relations":[]}`))
	inv.OnFunc("1.11", func(req llm.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"entity_cardinalities":{}}`), nil
	})
	inv.On("1.12", json.RawMessage(`{"valid":true,"issues":[]}`))
	return inv
}

func TestRunUpToPhase1_LibraryScenario(t *testing.T) {
	deps := common.Deps{Invoker: librarySceneInvoker(), MaxFanOutConcurrency: 2}
	eng := New(deps, nil)
	s := eng.SeedState("I need a database for a library with books, authors, and members who borrow books.")

	err := eng.RunUpTo(context.Background(), "run-s1", s, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Phase)
	assert.True(t, s.HasEntity("Book"))
	assert.True(t, s.HasEntity("Author"))
	assert.True(t, s.HasEntity("Member"))

	var hasBookAuthor, hasMemberBook bool
	for _, r := range s.Relations {
		switch {
		case sameEntitySet(r.Entities, "Book", "Author"):
			hasBookAuthor = true
		case sameEntitySet(r.Entities, "Member", "Book"):
			hasMemberBook = true
		}
	}
	assert.True(t, hasBookAuthor, "expected a relation between Book and Author")
	assert.True(t, hasMemberBook, "expected a relation between Member and Book (borrows)")

	// The connectivity loop ran at least once and left no orphans.
	assert.Empty(t, s.Metadata.OrphanEntities())
}

func sameEntitySet(entities []string, a, b string) bool {
	if len(entities) != 2 {
		return false
	}
	return (entities[0] == a && entities[1] == b) || (entities[0] == b && entities[1] == a)
}
