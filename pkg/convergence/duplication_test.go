package convergence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

func TestCheckDuplicationFlagsRetriggeredField(t *testing.T) {
	s := pipeline.Seed("a library")
	// Three entries, only one unique signature: 3 > 2*1, so this must flag.
	s.Entities = []pipeline.Entity{
		{Name: "Book"},
		{Name: "book"},
		{Name: "BOOK"},
	}

	warnings := CheckDuplication(s)
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"entities"`)
}

func TestCheckDuplicationNoWarningWhenWithinBound(t *testing.T) {
	s := pipeline.Seed("a library")
	s.Entities = []pipeline.Entity{
		{Name: "Book"},
		{Name: "Author"},
		{Name: "Member"},
	}
	s.DDLStatements = []string{
		"CREATE TABLE book (id INTEGER)",
		"CREATE TABLE author (id INTEGER)",
	}

	assert.Empty(t, CheckDuplication(s))
}

func TestCheckDuplicationFlagsConstraintsAndInformationNeeds(t *testing.T) {
	s := pipeline.Seed("a library")

	s.Constraints = []pipeline.Constraint{
		{ID: "c1", Kind: "unique", Entity: "Book", Attributes: []string{"isbn"}},
		{ID: "c2", Kind: "unique", Entity: "Book", Attributes: []string{"isbn"}},
		{ID: "c3", Kind: "unique", Entity: "Book", Attributes: []string{"isbn"}},
	}
	s.InformationNeeds = []pipeline.InformationNeed{
		{ID: "n1"}, {ID: "n1"}, {ID: "n1"},
	}

	warnings := CheckDuplication(s)
	assert.Len(t, warnings, 2)
}
