package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigStats(t *testing.T) {
	cfg := validConfigForTest()
	stats := cfg.Stats()
	assert.Equal(t, 1, stats.Pipelines)
	assert.Equal(t, 0, stats.Substeps)
	assert.Equal(t, 1, stats.LLMProviders)
}

func TestResolveLLMProviderFallbackOrder(t *testing.T) {
	cfg := validConfigForTest()

	// No overrides anywhere: falls back to Defaults.
	assert.Equal(t, "default", cfg.ResolveLLMProvider(nil, nil, nil))

	pipeline := &PipelineConfig{LLMProvider: "pipeline-provider"}
	assert.Equal(t, "pipeline-provider", cfg.ResolveLLMProvider(pipeline, nil, nil))

	phase := &PhaseConfig{LLMProvider: "phase-provider"}
	assert.Equal(t, "phase-provider", cfg.ResolveLLMProvider(pipeline, phase, nil))

	step := &SubstepConfig{LLMProvider: "step-provider"}
	assert.Equal(t, "step-provider", cfg.ResolveLLMProvider(pipeline, phase, step))
}

func TestGetPipelineAndSubstep(t *testing.T) {
	cfg := validConfigForTest()

	p, err := cfg.GetPipeline("default")
	assert.NoError(t, err)
	assert.NotNil(t, p)

	_, err = cfg.GetSubstep("1.1")
	assert.ErrorIs(t, err, ErrSubstepNotFound)
}
