package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfigForTest() *Config {
	llmProviders := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"default": {Type: LLMProviderTypeGoogle, Model: "gemini-2.0-flash-thinking-exp-01-21", Address: "localhost:50051", MaxOutputTokens: 8192},
	})
	pipelines := NewPipelineRegistry(map[string]*PipelineConfig{
		"default": {
			LLMProvider: "default",
			Phases: []PhaseConfig{
				{Number: 1, Name: "Domain & Entity Discovery", Substeps: []SubstepRef{{StepID: "1.1"}}},
			},
		},
	}, "default")
	return &Config{
		Queue:               DefaultQueueConfig(),
		Retention:           DefaultRetentionConfig(),
		Defaults:            &Defaults{LLMProvider: "default", Pipeline: "default"},
		PipelineRegistry:    pipelines,
		SubstepRegistry:     NewSubstepRegistry(map[string]*SubstepConfig{}),
		LLMProviderRegistry: llmProviders,
	}
}

func TestValidateAllAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfigForTest()
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateQueueRejectsJitterAboveInterval(t *testing.T) {
	cfg := validConfigForTest()
	cfg.Queue.PollIntervalJitter = cfg.Queue.PollInterval * 2

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval_jitter")
}

func TestValidatePipelinesRejectsDuplicatePhaseNumber(t *testing.T) {
	cfg := validConfigForTest()
	p := cfg.PipelineRegistry.GetAll()["default"]
	p.Phases = append(p.Phases, PhaseConfig{Number: 1, Name: "duplicate", Substeps: []SubstepRef{{StepID: "1.2"}}})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate phase number")
}

func TestValidatePipelinesRejectsUnknownLLMProviderReference(t *testing.T) {
	cfg := validConfigForTest()
	p := cfg.PipelineRegistry.GetAll()["default"]
	p.LLMProvider = "ghost-provider"

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost-provider")
}

func TestValidateDefaultsRejectsUnknownPipelineReference(t *testing.T) {
	cfg := validConfigForTest()
	cfg.Defaults.Pipeline = "ghost-pipeline"

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost-pipeline")
}

func TestValidateLLMProvidersRequiresAddress(t *testing.T) {
	cfg := validConfigForTest()
	cfg.LLMProviderRegistry.GetAll()["default"].Address = ""

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")
}
