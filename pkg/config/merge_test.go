package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeSubstepsUserOverridesBuiltin(t *testing.T) {
	builtin := map[string]SubstepConfig{
		"2.9": {Description: "built-in constraint hints"},
	}
	user := map[string]SubstepConfig{
		"2.9":  {Description: "user override", LLMProvider: "fast"},
		"9.1":  {Description: "generation strategy for numeric columns"},
	}

	merged := mergeSubsteps(builtin, user)
	assert.Len(t, merged, 2)
	assert.Equal(t, "user override", merged["2.9"].Description)
	assert.Equal(t, "fast", merged["2.9"].LLMProvider)
	assert.Equal(t, "generation strategy for numeric columns", merged["9.1"].Description)
}

func TestMergePipelinesUserAddsNewProfile(t *testing.T) {
	builtin := map[string]PipelineConfig{
		"default": {Description: "builtin"},
	}
	user := map[string]PipelineConfig{
		"strict": {Description: "strict variant"},
	}

	merged := mergePipelines(builtin, user)
	assert.Len(t, merged, 2)
	assert.Equal(t, "builtin", merged["default"].Description)
	assert.Equal(t, "strict variant", merged["strict"].Description)
}

func TestMergeLLMProvidersOverride(t *testing.T) {
	builtin := map[string]LLMProviderConfig{
		"default": {Model: "gemini-2.0-flash-thinking-exp-01-21"},
	}
	user := map[string]LLMProviderConfig{
		"default": {Model: "gemini-2.5-pro"},
	}

	merged := mergeLLMProviders(builtin, user)
	assert.Len(t, merged, 1)
	assert.Equal(t, "gemini-2.5-pro", merged["default"].Model)
}
