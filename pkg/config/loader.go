package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// CompilerYAMLConfig represents the complete compiler.yaml file structure.
type CompilerYAMLConfig struct {
	Substeps  map[string]SubstepConfig  `yaml:"substeps"`
	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
	Defaults  *Defaults                 `yaml:"defaults"`
	Queue     *QueueConfig              `yaml:"queue"`
	Retention *RetentionConfig          `yaml:"retention"`
	Server    *ServerYAMLConfig         `yaml:"server"`
}

// ServerYAMLConfig holds HTTP API server settings from YAML.
type ServerYAMLConfig struct {
	ListenAddr      string `yaml:"listen_addr,omitempty"`
	ReadTimeout     string `yaml:"read_timeout,omitempty"`
	WriteTimeout    string `yaml:"write_timeout,omitempty"`
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file
// structure.
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined configurations
//  5. Build in-memory registries
//  6. Apply default values
//  7. Validate all configuration
//  8. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"pipelines", stats.Pipelines,
		"substeps", stats.Substeps,
		"llm_providers", stats.LLMProviders)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	compilerConfig, err := loader.loadCompilerYAML()
	if err != nil {
		return nil, NewLoadError("compiler.yaml", err)
	}

	llmProviders, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	builtin := GetBuiltinConfig()

	substeps := mergeSubsteps(builtin.Substeps, compilerConfig.Substeps)
	pipelines := mergePipelines(builtin.Pipelines, compilerConfig.Pipelines)
	llmProvidersMerged := mergeLLMProviders(builtin.LLMProviders, llmProviders)

	substepRegistry := NewSubstepRegistry(substeps)
	pipelineRegistry := NewPipelineRegistry(pipelines, builtin.DefaultPipeline)
	llmProviderRegistry := NewLLMProviderRegistry(llmProvidersMerged)

	defaults := compilerConfig.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}
	if defaults.Pipeline == "" {
		defaults.Pipeline = builtin.DefaultPipeline
	}
	if defaults.LLMProvider == "" {
		defaults.LLMProvider = "default"
	}
	if defaults.Similarity.Threshold == 0 {
		defaults.Similarity.Threshold = 0.7
	}
	if defaults.Similarity.MaxSuggestions == 0 {
		defaults.Similarity.MaxSuggestions = 3
	}

	queueConfig := DefaultQueueConfig()
	if compilerConfig.Queue != nil {
		if err := mergo.Merge(queueConfig, compilerConfig.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	retentionConfig := DefaultRetentionConfig()
	if compilerConfig.Retention != nil {
		if err := mergo.Merge(retentionConfig, compilerConfig.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	serverConfig, err := resolveServerConfig(compilerConfig.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server config: %w", err)
	}

	return &Config{
		configDir:           configDir,
		Defaults:            defaults,
		Queue:               queueConfig,
		Retention:           retentionConfig,
		Server:              serverConfig,
		PipelineRegistry:    pipelineRegistry,
		SubstepRegistry:     substepRegistry,
		LLMProviderRegistry: llmProviderRegistry,
	}, nil
}

func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand ${VAR}/$VAR references before parsing so secrets never live in
	// the YAML file itself.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadCompilerYAML() (*CompilerYAMLConfig, error) {
	var cfg CompilerYAMLConfig
	cfg.Substeps = make(map[string]SubstepConfig)
	cfg.Pipelines = make(map[string]PipelineConfig)

	if err := l.loadYAML("compiler.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]LLMProviderConfig, error) {
	var cfg LLMProvidersYAMLConfig
	cfg.LLMProviders = make(map[string]LLMProviderConfig)

	if err := l.loadYAML("llm-providers.yaml", &cfg); err != nil {
		return nil, err
	}
	return cfg.LLMProviders, nil
}

func resolveServerConfig(sys *ServerYAMLConfig) (*ServerConfig, error) {
	cfg := &ServerConfig{
		ListenAddr:      ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    0,
		ShutdownTimeout: 15 * time.Second,
	}

	if sys == nil {
		return cfg, nil
	}
	if sys.ListenAddr != "" {
		cfg.ListenAddr = sys.ListenAddr
	}
	if d, err := parseDurationField("read_timeout", sys.ReadTimeout); err != nil {
		return nil, err
	} else if d != 0 {
		cfg.ReadTimeout = d
	}
	if d, err := parseDurationField("write_timeout", sys.WriteTimeout); err != nil {
		return nil, err
	} else if d != 0 {
		cfg.WriteTimeout = d
	}
	if d, err := parseDurationField("shutdown_timeout", sys.ShutdownTimeout); err != nil {
		return nil, err
	} else if d != 0 {
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}

func parseDurationField(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return d, nil
}
