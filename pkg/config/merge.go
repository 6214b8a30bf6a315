package config

// mergeSubsteps merges built-in and user-defined substep overrides.
// User-defined entries override built-in entries with the same step ID.
func mergeSubsteps(builtin map[string]SubstepConfig, user map[string]SubstepConfig) map[string]*SubstepConfig {
	result := make(map[string]*SubstepConfig, len(builtin)+len(user))

	for id, cfg := range builtin {
		cfgCopy := cfg
		result[id] = &cfgCopy
	}
	for id, cfg := range user {
		cfgCopy := cfg
		result[id] = &cfgCopy
	}

	return result
}

// mergePipelines merges built-in and user-defined pipeline configurations.
// User-defined pipelines override built-in pipelines with the same ID.
func mergePipelines(builtin map[string]PipelineConfig, user map[string]PipelineConfig) map[string]*PipelineConfig {
	result := make(map[string]*PipelineConfig, len(builtin)+len(user))

	for id, pipeline := range builtin {
		pipelineCopy := pipeline
		result[id] = &pipelineCopy
	}
	for id, pipeline := range user {
		pipelineCopy := pipeline
		result[id] = &pipelineCopy
	}

	return result
}

// mergeLLMProviders merges built-in and user-defined LLM provider
// configurations. User-defined providers override built-in providers with
// the same name.
func mergeLLMProviders(builtin map[string]LLMProviderConfig, user map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	result := make(map[string]*LLMProviderConfig, len(builtin)+len(user))

	for name, provider := range builtin {
		providerCopy := provider
		result[name] = &providerCopy
	}
	for name, provider := range user {
		providerCopy := provider
		result[name] = &providerCopy
	}

	return result
}
