package pipeline

import (
	"strings"
	"time"
)

// State is the single heterogeneous record threaded through all nine
// phases (§3.1). Substep adapters receive it by reference but only read
// from it; their output reaches it only through Merge applying an Update.
// The engine and phasegraph write Phase, Warnings and loop metadata
// directly.
type State struct {
	// Identity & tracking
	NLDescription   string                    `json:"nl_description"`
	Phase           int                       `json:"phase"`
	CurrentStep     string                    `json:"current_step"`
	PreviousAnswers map[string]any            `json:"previous_answers"`
	LoopIterations  map[string]int            `json:"loop_iterations"`
	Errors          []string                  `json:"errors"`
	Warnings        []string                  `json:"warnings"`

	// Schema entities
	Domain            string                `json:"domain,omitempty"`
	HasExplicitDomain bool                  `json:"has_explicit_domain"`
	Entities          []Entity              `json:"entities"`
	Relations         []Relation            `json:"relations"`
	Attributes        map[string][]Attribute `json:"attributes"`
	PrimaryKeys       map[string][]string   `json:"primary_keys"`
	ForeignKeys       []ForeignKey          `json:"foreign_keys"`
	Constraints       []Constraint          `json:"constraints"`
	DerivedFormulas   map[string]DerivedFormula `json:"derived_formulas"`

	// Analysis artifacts
	InformationNeeds       []InformationNeed                `json:"information_needs"`
	SQLQueries             []string                         `json:"sql_queries"`
	FunctionalDependencies []FunctionalDependency            `json:"functional_dependencies"`
	DataTypes              map[string]map[string]DataTypeInfo `json:"data_types"`
	CategoricalAttributes  []CategoricalAttribute            `json:"categorical_attributes"`
	CategoricalValues      map[string][]string               `json:"categorical_values"`
	DDLStatements          []string                          `json:"ddl_statements"`
	GenerationStrategies   map[string]map[string]GenerationStrategy `json:"generation_strategies"`

	// Metadata bucket
	Metadata Metadata `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

// Seed creates the initial state for a new run: empty collections, phase 1,
// immutable nl_description (§3.3).
func Seed(nlDescription string) *State {
	return &State{
		NLDescription:   nlDescription,
		Phase:           1,
		CurrentStep:     "",
		PreviousAnswers: map[string]any{},
		LoopIterations:  map[string]int{},
		Errors:          []string{},
		Warnings:        []string{},

		Entities:        []Entity{},
		Relations:       []Relation{},
		Attributes:      map[string][]Attribute{},
		PrimaryKeys:     map[string][]string{},
		ForeignKeys:     []ForeignKey{},
		Constraints:     []Constraint{},
		DerivedFormulas: map[string]DerivedFormula{},

		InformationNeeds:       []InformationNeed{},
		SQLQueries:             []string{},
		FunctionalDependencies: []FunctionalDependency{},
		DataTypes:              map[string]map[string]DataTypeInfo{},
		CategoricalAttributes:  []CategoricalAttribute{},
		CategoricalValues:      map[string][]string{},
		DDLStatements:          []string{},
		GenerationStrategies:   map[string]map[string]GenerationStrategy{},

		Metadata:  Metadata{},
		CreatedAt: time.Now(),
	}
}

// EntityNames returns the canonical (original-cased) entity name set.
func (s *State) EntityNames() []string {
	names := make([]string, len(s.Entities))
	for i, e := range s.Entities {
		names[i] = e.Name
	}
	return names
}

// HasEntity reports whether name exists in Entities, case-insensitively.
func (s *State) HasEntity(name string) bool {
	for _, e := range s.Entities {
		if strings.EqualFold(e.Name, name) {
			return true
		}
	}
	return false
}
