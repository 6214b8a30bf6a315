package config

// Shared types used across configuration structs.

// SimilarityConfig holds attribute/entity-name suggestion settings for
// pkg/similarity.Suggest. The loader fills in defaults and the validator
// checks them; no phase reads them (the transition validators use
// similarity.DefaultThreshold).
type SimilarityConfig struct {
	Threshold float64 `yaml:"threshold,omitempty" validate:"omitempty,min=0,max=1"`
	MaxSuggestions int  `yaml:"max_suggestions,omitempty" validate:"omitempty,min=1"`
}

// SubstepRef references a substep within a phase, with optional per-substep
// overrides. Mirrors the teacher's StageAgentConfig (an agent reference with
// stage-level overrides) — here a step-ID reference with phase-level
// overrides.
type SubstepRef struct {
	StepID      string `yaml:"step_id" validate:"required"`
	LLMProvider string `yaml:"llm_provider,omitempty"`
	MaxRounds   *int   `yaml:"max_rounds,omitempty" validate:"omitempty,min=1"`
}
