// Package config provides configuration management for the nl2schema
// compiler: pipeline/phase/substep definitions, LLM provider registries,
// and the ambient queue/retention/server settings the worker pool and API
// server need.
package config

// Config is the umbrella configuration object that encapsulates all
// registries, defaults, and configuration state. This is the primary object
// returned by Initialize and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// System-wide defaults
	Defaults *Defaults

	// Ambient configuration
	Queue     *QueueConfig
	Retention *RetentionConfig
	Server    *ServerConfig

	// Component registries
	PipelineRegistry    *PipelineRegistry
	SubstepRegistry      *SubstepRegistry
	LLMProviderRegistry *LLMProviderRegistry
}

// ConfigStats contains statistics about loaded configuration.
type ConfigStats struct {
	Pipelines    int
	Substeps     int
	LLMProviders int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		Pipelines:    len(c.PipelineRegistry.GetAll()),
		Substeps:     len(c.SubstepRegistry.GetAll()),
		LLMProviders: len(c.LLMProviderRegistry.GetAll()),
	}
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetPipeline retrieves a pipeline configuration by ID.
func (c *Config) GetPipeline(id string) (*PipelineConfig, error) {
	return c.PipelineRegistry.Get(id)
}

// GetDefaultPipeline retrieves the registry's default pipeline configuration.
func (c *Config) GetDefaultPipeline() (*PipelineConfig, error) {
	return c.PipelineRegistry.GetDefault()
}

// GetSubstep retrieves a substep override by step ID.
func (c *Config) GetSubstep(stepID string) (*SubstepConfig, error) {
	return c.SubstepRegistry.Get(stepID)
}

// GetLLMProvider retrieves an LLM provider configuration by name.
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}

// ResolveLLMProvider resolves the effective provider name for a given step,
// phase, and pipeline, applying the fallback order step > phase > pipeline
// > Defaults named throughout this package's per-level LLMProvider fields.
func (c *Config) ResolveLLMProvider(pipeline *PipelineConfig, phase *PhaseConfig, step *SubstepConfig) string {
	if step != nil && step.LLMProvider != "" {
		return step.LLMProvider
	}
	if phase != nil && phase.LLMProvider != "" {
		return phase.LLMProvider
	}
	if pipeline != nil && pipeline.LLMProvider != "" {
		return pipeline.LLMProvider
	}
	if c.Defaults != nil {
		return c.Defaults.LLMProvider
	}
	return ""
}
