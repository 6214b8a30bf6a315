package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeAppendsListFields(t *testing.T) {
	s := Seed("a library")

	Merge(s, Update{
		Entities:    []Entity{{Name: "Book"}},
		Relations:   []Relation{{Entities: []string{"Book", "Author"}, Type: "many-to-many"}},
		Errors:      []string{"e1"},
		Warnings:    []string{"w1"},
	})
	Merge(s, Update{
		Entities:    []Entity{{Name: "Author"}},
		Relations:   []Relation{{Entities: []string{"Book", "Member"}, Type: "one-to-many"}},
		Errors:      []string{"e2"},
		Warnings:    []string{"w2"},
	})

	require.Len(t, s.Entities, 2)
	assert.Equal(t, "Book", s.Entities[0].Name)
	assert.Equal(t, "Author", s.Entities[1].Name)
	require.Len(t, s.Relations, 2)
	assert.Equal(t, []string{"e1", "e2"}, s.Errors)
	assert.Equal(t, []string{"w1", "w2"}, s.Warnings)
}

func TestMergeOverwritesMapFieldsWhenNonNil(t *testing.T) {
	s := Seed("a library")

	Merge(s, Update{Attributes: map[string][]Attribute{
		"Book": {{Name: "title"}},
	}})
	assert.Equal(t, []Attribute{{Name: "title"}}, s.Attributes["Book"])

	Merge(s, Update{Attributes: map[string][]Attribute{
		"Book": {{Name: "title"}, {Name: "isbn"}},
	}})
	assert.Equal(t, []Attribute{{Name: "title"}, {Name: "isbn"}}, s.Attributes["Book"])
}

func TestMergeLeavesOverwriteFieldsUntouchedWhenNil(t *testing.T) {
	s := Seed("a library")
	Merge(s, Update{PrimaryKeys: map[string][]string{"Book": {"id"}}})

	// An Update with a nil PrimaryKeys map must not clobber what a prior
	// superstep wrote.
	Merge(s, Update{Entities: []Entity{{Name: "Book"}}})

	assert.Equal(t, map[string][]string{"Book": {"id"}}, s.PrimaryKeys)
}

func TestMergeStepIDRecordsCurrentStepAndRawOutput(t *testing.T) {
	s := Seed("a library")
	Merge(s, Update{StepID: "1.1", RawOutput: map[string]any{"domain": "library"}})

	assert.Equal(t, "1.1", s.CurrentStep)
	assert.Equal(t, map[string]any{"domain": "library"}, s.PreviousAnswers["1.1"])
}

func TestMergeMetadataAndLoopIterationsUnionByKey(t *testing.T) {
	s := Seed("a library")
	Merge(s, Update{Metadata: Metadata{"a": 1}, LoopIterations: map[string]int{"connectivity": 1}})
	Merge(s, Update{Metadata: Metadata{"b": 2}, LoopIterations: map[string]int{"relation_validation": 2}})

	assert.Equal(t, Metadata{"a": 1, "b": 2}, s.Metadata)
	assert.Equal(t, map[string]int{"connectivity": 1, "relation_validation": 2}, s.LoopIterations)
}

func TestMergeAllAppliesUpdatesInOrder(t *testing.T) {
	s := Seed("a library")
	MergeAll(s, []Update{
		{Entities: []Entity{{Name: "Book"}}},
		{Entities: []Entity{{Name: "Author"}}},
		{Entities: []Entity{{Name: "Member"}}},
	})

	require.Len(t, s.Entities, 3)
	assert.Equal(t, []string{"Book", "Author", "Member"}, s.EntityNames())
}
