package gate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

// ErrNotFrozen is the terminal error raised when a phase > 4 runs without a
// frozen schema present (§4.5.C).
var ErrNotFrozen = errors.New("gate: metadata.frozen_schema is required for phases after 4")

// ValidateFrozenImmutability is invoked at the start of every phase p > 4
// (§4.5.C). Absence of metadata.frozen_schema is terminal. New entities
// appearing after the freeze produce warnings, tolerated only when the
// caller has recorded an explicit modification (Open Question #2: surrogate
// key injection after freeze raises unless recorded via
// State.Metadata.SchemaModifications).
func ValidateFrozenImmutability(s *pipeline.State) (warnings []string, err error) {
	frozen, ok := s.Metadata.FrozenSchema()
	if !ok {
		return nil, ErrNotFrozen
	}

	frozenTables := map[string]bool{}
	for _, t := range frozen.Tables {
		frozenTables[strings.ToLower(t.Name)] = true
	}

	recorded := map[string]bool{}
	for _, m := range s.Metadata.SchemaModifications() {
		recorded[strings.ToLower(m)] = true
	}

	var unrecorded []string
	for _, e := range s.Entities {
		if !frozenTables[strings.ToLower(e.Name)] {
			if recorded[strings.ToLower(e.Name)] {
				warnings = append(warnings, fmt.Sprintf("frozen-schema: entity %q added after freeze (recorded modification)", e.Name))
			} else {
				unrecorded = append(unrecorded, e.Name)
			}
		}
	}

	if len(unrecorded) > 0 {
		return warnings, fmt.Errorf("gate: entities %v added after schema freeze without a recorded modification", unrecorded)
	}

	return warnings, nil
}
