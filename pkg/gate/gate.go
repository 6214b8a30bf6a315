// Package gate implements the three validator families of §4.5: phase
// gates (terminal), transition validators (non-fatal), and frozen-schema
// immutability checks. Grounded on the teacher's chain-stage validation
// style (pkg/config/validator.go's ValidateAll accumulating errors) but
// specialized to the three distinct severities this spec calls for.
package gate

import (
	"fmt"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
)

// Func is a phase gate: a deterministic post-phase predicate. A non-nil
// error is terminal (§4.5.A, §7 kind 2).
type Func func(s *pipeline.State) error

// Registry maps phase number to its gate.
var Registry = map[int]Func{
	1: gatePhase1,
	2: gatePhase2,
	3: gatePhase3,
	4: gatePhase4,
	5: gatePhase5,
	6: gatePhase6,
	7: gatePhase7,
	8: gatePhase8,
	9: gatePhase9,
}

// Run invokes the registered gate for phase p, if any.
func Run(p int, s *pipeline.State) error {
	fn, ok := Registry[p]
	if !ok {
		return nil
	}
	return fn(s)
}

func gatePhase1(s *pipeline.State) error {
	if len(s.Entities) == 0 {
		return fmt.Errorf("gate(1): entities must be non-empty")
	}
	for _, r := range s.Relations {
		for _, e := range r.Entities {
			if !s.HasEntity(e) {
				return fmt.Errorf("gate(1): relation references unknown entity %q", e)
			}
		}
	}
	return nil
}

func gatePhase2(s *pipeline.State) error {
	for _, e := range s.Entities {
		if _, ok := s.Attributes[e.Name]; !ok {
			return fmt.Errorf("gate(2): entity %q has no attributes", e.Name)
		}
	}
	return nil
}

func gatePhase3(s *pipeline.State) error {
	if _, ok := s.Metadata.RelationalSchema(); !ok {
		return fmt.Errorf("gate(3): metadata.relational_schema must be set")
	}
	return nil
}

func gatePhase4(s *pipeline.State) error {
	schema, ok := s.Metadata.RelationalSchema()
	if !ok || len(schema.Tables) == 0 {
		return fmt.Errorf("gate(4): metadata.relational_schema.tables must be non-empty")
	}
	for _, t := range schema.Tables {
		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			cols[c] = true
		}
		for _, pk := range t.PrimaryKey {
			if !cols[pk] {
				return fmt.Errorf("gate(4): table %q declares primary key column %q not in its column list", t.Name, pk)
			}
		}
	}
	if _, ok := s.Metadata.FrozenSchema(); !ok {
		return fmt.Errorf("gate(4): schema must be frozen into metadata.frozen_schema by the end of phase 4")
	}
	return nil
}

func gatePhase5(s *pipeline.State) error {
	for _, fk := range s.ForeignKeys {
		fromTypes, ok := s.DataTypes[fk.FromEntity]
		if !ok {
			return fmt.Errorf("gate(5): foreign key from entity %q has no data types assigned", fk.FromEntity)
		}
		toTypes, ok := s.DataTypes[fk.ToEntity]
		if !ok {
			return fmt.Errorf("gate(5): foreign key to entity %q has no data types assigned", fk.ToEntity)
		}
		for i, fa := range fk.FromAttributes {
			if i >= len(fk.ToAttributes) {
				break
			}
			ta := fk.ToAttributes[i]
			ft, ok := fromTypes[fa]
			if !ok {
				return fmt.Errorf("gate(5): %s.%s has no assigned type", fk.FromEntity, fa)
			}
			tt, ok := toTypes[ta]
			if !ok {
				return fmt.Errorf("gate(5): %s.%s has no assigned type", fk.ToEntity, ta)
			}
			if ft.SQLType != tt.SQLType {
				return fmt.Errorf("gate(5): FK type mismatch %s.%s (%s) != %s.%s (%s)",
					fk.FromEntity, fa, ft.SQLType, fk.ToEntity, ta, tt.SQLType)
			}
		}
	}
	return nil
}

func gatePhase6(s *pipeline.State) error {
	if len(s.DDLStatements) == 0 {
		return fmt.Errorf("gate(6): ddl_statements must be non-empty")
	}
	return nil
}

func gatePhase7(s *pipeline.State) error {
	for _, n := range s.InformationNeeds {
		if !n.Valid && n.ValidationError == "" {
			return fmt.Errorf("gate(7): information need %q is invalid but has no recorded validation_error", n.ID)
		}
	}
	return nil
}

func gatePhase8(s *pipeline.State) error {
	return nil
}

func gatePhase9(s *pipeline.State) error {
	for _, e := range s.Entities {
		if _, ok := s.GenerationStrategies[e.Name]; !ok {
			return fmt.Errorf("gate(9): entity %q has no generation strategies", e.Name)
		}
	}
	return nil
}
