package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

func frozenState() *pipeline.State {
	s := pipeline.Seed("a library")
	s.Entities = []pipeline.Entity{{Name: "Book"}, {Name: "Author"}}
	s.Metadata.Freeze(pipeline.RelationalSchema{Tables: []pipeline.RelationalTable{
		{Name: "book"}, {Name: "author"},
	}})
	return s
}

func TestValidateFrozenImmutabilityRequiresFreeze(t *testing.T) {
	s := pipeline.Seed("a library")

	warnings, err := ValidateFrozenImmutability(s)
	assert.ErrorIs(t, err, ErrNotFrozen)
	assert.Empty(t, warnings)
}

func TestValidateFrozenImmutabilityPassesWithNoNewEntities(t *testing.T) {
	s := frozenState()

	warnings, err := ValidateFrozenImmutability(s)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidateFrozenImmutabilityRejectsUnrecordedNewEntity(t *testing.T) {
	s := frozenState()
	s.Entities = append(s.Entities, pipeline.Entity{Name: "Fine"})

	warnings, err := ValidateFrozenImmutability(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Fine")
	assert.Empty(t, warnings)
}

func TestValidateFrozenImmutabilityWarnsOnRecordedModification(t *testing.T) {
	s := frozenState()
	s.Entities = append(s.Entities, pipeline.Entity{Name: "Fine"})
	s.Metadata["schema_modifications"] = []string{"Fine"}

	warnings, err := ValidateFrozenImmutability(s)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Fine")
}
