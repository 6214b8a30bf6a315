package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

func TestSchemaOneToManyForeignKeyOnManySide(t *testing.T) {
	entities := []pipeline.Entity{{Name: "Author"}, {Name: "Book"}}
	relations := []pipeline.Relation{{Entities: []string{"Author", "Book"}, Type: "one-to-many"}}
	primaryKeys := map[string][]string{"Author": {"id"}, "Book": {"id"}}

	result := Schema(entities, relations, nil, primaryKeys, nil)

	require.Len(t, result.ForeignKeys, 1)
	fk := result.ForeignKeys[0]
	assert.Equal(t, "Book", fk.FromEntity)
	assert.Equal(t, "Author", fk.ToEntity)
	assert.Equal(t, []string{"Author_id"}, fk.FromAttributes)
	assert.Equal(t, []string{"id"}, fk.ToAttributes)

	var bookTable pipeline.RelationalTable
	for _, tbl := range result.Schema.Tables {
		if tbl.SourceEntity == "Book" {
			bookTable = tbl
		}
	}
	assert.Contains(t, bookTable.Columns, "Author_id")
}

func TestSchemaOneToOneOwnedByLexicallyFirstEntity(t *testing.T) {
	entities := []pipeline.Entity{{Name: "User"}, {Name: "Profile"}}
	relations := []pipeline.Relation{{Entities: []string{"User", "Profile"}, Type: "one-to-one"}}
	primaryKeys := map[string][]string{"User": {"id"}, "Profile": {"id"}}

	result := Schema(entities, relations, nil, primaryKeys, nil)

	require.Len(t, result.ForeignKeys, 1)
	// "Profile" < "User" lexically, so Profile owns the FK.
	assert.Equal(t, "Profile", result.ForeignKeys[0].FromEntity)
	assert.Equal(t, "User", result.ForeignKeys[0].ToEntity)
}

func TestSchemaManyToManyBuildsJunctionTableWithCompositePK(t *testing.T) {
	entities := []pipeline.Entity{{Name: "Book"}, {Name: "Author"}}
	relations := []pipeline.Relation{{Entities: []string{"Book", "Author"}, Type: "many-to-many"}}
	primaryKeys := map[string][]string{"Book": {"id"}, "Author": {"id"}}

	result := Schema(entities, relations, nil, primaryKeys, nil)

	require.Len(t, result.Schema.Tables, 3)
	junction := result.Schema.Tables[2]
	assert.ElementsMatch(t, []string{"Book_id", "Author_id"}, junction.PrimaryKey)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "junction table naming fell back")
	// Fallback name must be the sorted, snake_cased join, never the literal
	// unsorted concatenation.
	assert.Equal(t, "author_book", junction.Name)
	assert.NotEqual(t, "Order_Product", junction.Name)
}

func TestSchemaManyToManyUsesProvidedJunctionName(t *testing.T) {
	entities := []pipeline.Entity{{Name: "Book"}, {Name: "Author"}}
	relations := []pipeline.Relation{{Entities: []string{"Book", "Author"}, Type: "many-to-many"}}
	primaryKeys := map[string][]string{"Book": {"id"}, "Author": {"id"}}
	junctionNames := map[string]string{junctionSignature([]string{"Book", "Author"}): "authorship"}

	result := Schema(entities, relations, nil, primaryKeys, junctionNames)

	require.Empty(t, result.Warnings)
	junction := result.Schema.Tables[2]
	assert.Equal(t, "authorship", junction.Name)
}

func TestBreakCyclesDropsOneEdgePerCycle(t *testing.T) {
	tables := map[string]*pipeline.RelationalTable{
		"A": {
			Name: "a", SourceEntity: "A",
			ForeignKeys: []pipeline.ForeignKey{{FromEntity: "A", ToEntity: "B", FromAttributes: []string{"B_id"}, ToAttributes: []string{"id"}}},
		},
		"B": {
			Name: "b", SourceEntity: "B",
			ForeignKeys: []pipeline.ForeignKey{{FromEntity: "B", ToEntity: "A", FromAttributes: []string{"A_id"}, ToAttributes: []string{"id"}}},
		},
	}

	warnings := breakCycles(tables, []string{"A", "B"}, nil)

	require.Len(t, warnings, 1)
	// Exactly one direction of the A<->B cycle survives.
	totalEdges := len(tables["A"].ForeignKeys) + len(tables["B"].ForeignKeys)
	assert.Equal(t, 1, totalEdges)
}

func TestSchemaSkipsRelationsWithUnknownEntities(t *testing.T) {
	entities := []pipeline.Entity{{Name: "Book"}}
	relations := []pipeline.Relation{{Entities: []string{"Book", "Ghost"}, Type: "one-to-many"}}
	primaryKeys := map[string][]string{"Book": {"id"}}

	result := Schema(entities, relations, nil, primaryKeys, nil)

	assert.Empty(t, result.ForeignKeys)
	require.Len(t, result.Schema.Tables, 1)
}
