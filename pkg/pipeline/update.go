package pipeline

// Update is a partial state update: the only value a substep adapter is
// permitted to construct and return (§4.2 contract item 4, invariant M1).
// Update is a distinct type from State — there is no conversion from one to
// the other — so an adapter cannot "return the whole state" even by
// accident; it can only populate the handful of fields it owns.
//
// Append-rule fields (Entities, Relations, ...) are concatenated onto the
// existing State slice. Overwrite-rule fields (Attributes, PrimaryKeys, ...)
// replace the State field wholesale when non-nil, and are therefore reserved
// to single-writer supersteps (§3.2, invariant M2) — a fan-out cohort must
// consolidate into one of these at its fan-in node, not have each element
// write it directly.
type Update struct {
	StepID         string
	RawOutput      any // stored under PreviousAnswers[StepID]
	Errors         []string
	Warnings       []string

	Domain            *string
	HasExplicitDomain *bool

	Entities        []Entity
	Relations       []Relation
	Attributes      map[string][]Attribute
	PrimaryKeys     map[string][]string
	ForeignKeys     []ForeignKey
	Constraints     []Constraint
	DerivedFormulas map[string]DerivedFormula

	InformationNeeds       []InformationNeed
	SQLQueries             []string
	FunctionalDependencies []FunctionalDependency
	DataTypes              map[string]map[string]DataTypeInfo
	CategoricalAttributes  []CategoricalAttribute
	CategoricalValues      map[string][]string
	DDLStatements          []string
	GenerationStrategies   map[string]map[string]GenerationStrategy

	Metadata Metadata

	// LoopIterations, when non-nil, overwrites the named counter(s).
	// convergence.Guard counts are not kept here: phasegraph.LoopNode
	// writes them to Metadata under Guard.IterationsKey().
	LoopIterations map[string]int

	// Phase, when non-nil, overwrites State.Phase. No node sets it;
	// phasegraph.Graph.Run and the engine write State.Phase directly.
	Phase *int
}

// Merge applies u to s in place, per the merge rules of §3.2. It is how
// substep output reaches State; the engine and phasegraph also write Phase,
// Warnings and loop metadata directly.
func Merge(s *State, u Update) {
	if u.StepID != "" {
		s.CurrentStep = u.StepID
		if u.RawOutput != nil {
			s.PreviousAnswers[u.StepID] = u.RawOutput
		}
	}

	s.Errors = append(s.Errors, u.Errors...)
	s.Warnings = append(s.Warnings, u.Warnings...)

	if u.Domain != nil {
		s.Domain = *u.Domain
	}
	if u.HasExplicitDomain != nil {
		s.HasExplicitDomain = *u.HasExplicitDomain
	}

	s.Entities = append(s.Entities, u.Entities...)
	s.Relations = append(s.Relations, u.Relations...)
	if u.Attributes != nil {
		s.Attributes = u.Attributes
	}
	if u.PrimaryKeys != nil {
		s.PrimaryKeys = u.PrimaryKeys
	}
	s.ForeignKeys = append(s.ForeignKeys, u.ForeignKeys...)
	s.Constraints = append(s.Constraints, u.Constraints...)
	if u.DerivedFormulas != nil {
		s.DerivedFormulas = u.DerivedFormulas
	}

	s.InformationNeeds = append(s.InformationNeeds, u.InformationNeeds...)
	s.SQLQueries = append(s.SQLQueries, u.SQLQueries...)
	s.FunctionalDependencies = append(s.FunctionalDependencies, u.FunctionalDependencies...)
	if u.DataTypes != nil {
		s.DataTypes = u.DataTypes
	}
	s.CategoricalAttributes = append(s.CategoricalAttributes, u.CategoricalAttributes...)
	if u.CategoricalValues != nil {
		s.CategoricalValues = u.CategoricalValues
	}
	s.DDLStatements = append(s.DDLStatements, u.DDLStatements...)
	if u.GenerationStrategies != nil {
		s.GenerationStrategies = u.GenerationStrategies
	}

	for k, v := range u.Metadata {
		s.Metadata[k] = v
	}
	for k, v := range u.LoopIterations {
		s.LoopIterations[k] = v
	}

	if u.Phase != nil {
		s.Phase = *u.Phase
	}
}

// MergeAll applies a sequence of updates in order — the fan-in path for a
// cohort that has already sorted its per-element updates by element
// identity (§4.3 "gather results in deterministic order").
func MergeAll(s *State, us []Update) {
	for _, u := range us {
		Merge(s, u)
	}
}
