package convergence

import "github.com/codeready-toolchain/nl2schema/pkg/pipeline"

// CheckDuplication runs the list-duplication detector (§4.4, §8 invariant 1)
// against six append-merged fields of s (entities, relations, constraints,
// information_needs, functional_dependencies, ddl_statements) and returns a
// warning per field that trips it. A trip indicates a node accidentally
// returned the whole state (§3.2 invariant M1) rather than just its owned
// keys. The other append-merged fields (warnings, errors, sql_queries,
// foreign_keys, categorical_attributes) are not checked.
func CheckDuplication(s *pipeline.State) []string {
	var warnings []string

	check := func(field string, total, unique int) {
		if total > 2*unique {
			warnings = append(warnings, pipeline.DescribeDuplication(field, total, unique))
		}
	}

	t, u := pipeline.CountUnique(s.Entities, pipeline.EntitySignature)
	check("entities", t, u)
	t, u = pipeline.CountUnique(s.Relations, pipeline.RelationSignature)
	check("relations", t, u)
	t, u = pipeline.CountUnique(s.Constraints, pipeline.ConstraintSignature)
	check("constraints", t, u)
	t, u = pipeline.CountUnique(s.InformationNeeds, pipeline.InformationNeedSignature)
	check("information_needs", t, u)
	t, u = pipeline.CountUnique(s.FunctionalDependencies, pipeline.FunctionalDependencySignature)
	check("functional_dependencies", t, u)
	t, u = pipeline.CountUnique(s.DDLStatements, pipeline.DDLStatementSignature)
	check("ddl_statements", t, u)

	return warnings
}
