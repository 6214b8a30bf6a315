package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInitializeWithBuiltinsOnly(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "compiler.yaml", "")
	writeConfigFile(t, dir, "llm-providers.yaml", "")

	ctx := context.Background()
	cfg, err := Initialize(ctx, dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.True(t, cfg.PipelineRegistry.Has("default"))
	assert.True(t, cfg.LLMProviderRegistry.Has("default"))

	stats := cfg.Stats()
	assert.Equal(t, 9, len(cfg.PipelineRegistry.GetAll()["default"].Phases))
	assert.Greater(t, stats.Pipelines, 0)
	assert.Greater(t, stats.LLMProviders, 0)
}

func TestInitializeConfigNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Initialize(ctx, "/nonexistent/directory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "compiler.yaml", "substeps: [this is not a map")
	writeConfigFile(t, dir, "llm-providers.yaml", "")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestInitializeUserPipelineOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "compiler.yaml", `
pipelines:
  default:
    description: "overridden by user config"
    llm_provider: custom
    phases:
      - number: 1
        name: "Domain & Entity Discovery"
        substeps:
          - step_id: "1.1"
defaults:
  pipeline: default
  llm_provider: custom
`)
	writeConfigFile(t, dir, "llm-providers.yaml", `
llm_providers:
  custom:
    type: google
    model: gemini-2.5-pro
    address: localhost:50051
    max_output_tokens: 8192
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	pipeline, err := cfg.GetDefaultPipeline()
	require.NoError(t, err)
	assert.Equal(t, "overridden by user config", pipeline.Description)
	assert.Len(t, pipeline.Phases, 1)
}

func TestInitializeValidationFailureUnknownProviderReference(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "compiler.yaml", `
defaults:
  llm_provider: does-not-exist
`)
	writeConfigFile(t, dir, "llm-providers.yaml", "")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestEnvironmentVariableInterpolation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NL2SCHEMA_TEST_ADDR", "llm-sidecar:50051")
	writeConfigFile(t, dir, "compiler.yaml", "")
	writeConfigFile(t, dir, "llm-providers.yaml", `
llm_providers:
  default:
    type: google
    model: gemini-2.0-flash-thinking-exp-01-21
    address: ${NL2SCHEMA_TEST_ADDR}
    max_output_tokens: 8192
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	p, err := cfg.GetLLMProvider("default")
	require.NoError(t, err)
	assert.Equal(t, "llm-sidecar:50051", p.Address)
}
