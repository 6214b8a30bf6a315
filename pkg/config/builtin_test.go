package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinConfigSingleton(t *testing.T) {
	a := GetBuiltinConfig()
	b := GetBuiltinConfig()
	assert.Same(t, a, b)
}

func TestBuiltinDefaultPipelineHasAllNinePhases(t *testing.T) {
	builtin := GetBuiltinConfig()
	pipeline, ok := builtin.Pipelines[builtin.DefaultPipeline]
	require.True(t, ok)
	require.Len(t, pipeline.Phases, 9)

	seen := make(map[int]bool)
	for _, phase := range pipeline.Phases {
		assert.False(t, seen[phase.Number], "phase %d listed twice", phase.Number)
		seen[phase.Number] = true
		assert.NotEmpty(t, phase.Name)
		assert.NotEmpty(t, phase.Substeps)
	}
	for n := 1; n <= 9; n++ {
		assert.True(t, seen[n], "phase %d missing from default pipeline", n)
	}
}

func TestBuiltinDefaultPipelineStepIDsAreUnique(t *testing.T) {
	builtin := GetBuiltinConfig()
	pipeline := builtin.Pipelines[builtin.DefaultPipeline]

	seen := make(map[string]bool)
	for _, phase := range pipeline.Phases {
		for _, s := range phase.Substeps {
			assert.False(t, seen[s.StepID], "step ID %s listed twice", s.StepID)
			seen[s.StepID] = true
		}
	}
}

func TestBuiltinLLMProviderReferencedByDefaultPipeline(t *testing.T) {
	builtin := GetBuiltinConfig()
	pipeline := builtin.Pipelines[builtin.DefaultPipeline]
	_, ok := builtin.LLMProviders[pipeline.LLMProvider]
	assert.True(t, ok)
}
