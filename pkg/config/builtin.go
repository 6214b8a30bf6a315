package config

import "sync"

// BuiltinConfig holds all built-in configuration data: the default
// nine-phase pipeline definition and the default LLM provider. Adapted from
// the teacher's BuiltinConfig (built-in agents/MCP servers/chains) —
// substep/MCP-server built-ins drop out with the domain they described;
// what's built in here is the pipeline shape every deployment needs, since
// unlike the teacher's alert-type chains, this engine has exactly one
// pipeline topology (the nine phases of §4.3) rather than an open set.
type BuiltinConfig struct {
	Substeps        map[string]SubstepConfig
	LLMProviders    map[string]LLMProviderConfig
	Pipelines       map[string]PipelineConfig
	DefaultPipeline string
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (thread-safe,
// lazy-initialized).
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		Substeps:        initBuiltinSubsteps(),
		LLMProviders:    initBuiltinLLMProviders(),
		Pipelines:       initBuiltinPipelines(),
		DefaultPipeline: "default",
	}
}

func initBuiltinLLMProviders() map[string]LLMProviderConfig {
	return map[string]LLMProviderConfig{
		"default": {
			Type:            LLMProviderTypeGoogle,
			Model:           "gemini-2.0-flash-thinking-exp-01-21",
			APIKeyEnv:       "GEMINI_API_KEY",
			Address:         "localhost:50051",
			Method:          "/llm.Backend/Invoke",
			MaxOutputTokens: 8192,
		},
	}
}

// initBuiltinSubsteps is empty by default — substeps only need an entry
// here when an operator wants to override a specific step's provider or
// round budget; absent entries fall through to phase, then pipeline, then
// Defaults.
func initBuiltinSubsteps() map[string]SubstepConfig {
	return map[string]SubstepConfig{}
}

// initBuiltinPipelines defines the single built-in "default" pipeline: all
// nine phases, in order, each naming the step IDs the phase packages assign
// (phases/phase1..phase9). This is the shape every deployment starts from;
// a user-defined pipeline.yaml can add named variants or override
// per-phase/per-step settings but cannot change the nine-phase topology
// itself (that's fixed by pkg/engine's phasegraph wiring, not data-driven).
func initBuiltinPipelines() map[string]PipelineConfig {
	return map[string]PipelineConfig{
		"default": {
			Description: "Standard nine-phase natural-language-to-schema compilation",
			LLMProvider: "default",
			Phases: []PhaseConfig{
				{Number: 1, Name: "Domain & Entity Discovery", Substeps: stepRefs(
					"1.1", "1.2", "1.4", "1.5", "1.6", "1.7", "1.75", "1.76", "1.8", "1.9", "1.10", "1.11", "1.12")},
				{Number: 2, Name: "Attribute Discovery & Schema Design", SuccessPolicy: SuccessPolicyAny, Substeps: stepRefs(
					"2.1", "2.2", "2.3", "2.6", "2.7", "2.8", "2.9", "2.10", "2.11", "2.12", "2.13", "2.14", "2.15")},
				{Number: 3, Name: "ER Design Compilation", Substeps: stepRefs(
					"3.1", "3.2", "3.3", "3.4", "3.45", "3.5")},
				{Number: 4, Name: "Relational Schema Design", Substeps: stepRefs("4.1")},
				{Number: 5, Name: "Data Type Assignment", SuccessPolicy: SuccessPolicyAny, Substeps: stepRefs(
					"5.1", "5.2", "5.3", "5.4", "5.5")},
				{Number: 6, Name: "DDL Generation", Substeps: stepRefs("6.1", "6.2", "6.3")},
				{Number: 7, Name: "Information Mining", Substeps: stepRefs("7.1", "7.2")},
				{Number: 8, Name: "Functional Dependencies & Constraints", Substeps: stepRefs(
					"8.1", "8.2", "8.3", "8.4", "8.5", "8.6", "8.7", "8.8")},
				{Number: 9, Name: "Generation Strategies", Substeps: stepRefs(
					"9.1", "9.2", "9.3", "9.4", "9.5", "9.6")},
			},
		},
	}
}

func stepRefs(ids ...string) []SubstepRef {
	refs := make([]SubstepRef, len(ids))
	for i, id := range ids {
		refs[i] = SubstepRef{StepID: id}
	}
	return refs
}
