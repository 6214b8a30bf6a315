package config

import (
	"fmt"
	"sync"
)

// LLMProviderConfig defines LLM provider configuration. Carried over from
// the teacher's LLMProviderConfig (api key / project / location env-var
// indirection, never the secret itself in YAML) with the MCP-era
// NativeTools map dropped — substeps in this engine never call tools, so
// there is nothing for a native-tool override to apply to.
type LLMProviderConfig struct {
	// Provider type (required)
	Type LLMProviderType `yaml:"type" validate:"required"`

	// Model name (required)
	Model string `yaml:"model" validate:"required"`

	// Environment variable name for API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// For VertexAI/GCP
	ProjectEnv  string `yaml:"project_env,omitempty"`
	LocationEnv string `yaml:"location_env,omitempty"`

	// gRPC address of the invoker sidecar for this provider (llm.NewGRPCInvoker)
	Address string `yaml:"address,omitempty" validate:"required"`

	// Method path on the gRPC backend (defaults to "/llm.Backend/Invoke")
	Method string `yaml:"method,omitempty"`

	// Optional custom endpoint/base URL for the provider's own upstream API
	BaseURL string `yaml:"base_url,omitempty"`

	// Maximum tokens for a single substep call (required, min 1000)
	MaxOutputTokens int `yaml:"max_output_tokens" validate:"required,min=1000"`

	// Temperature override, if the backend respects it
	Temperature *float32 `yaml:"temperature,omitempty"`
}

// LLMProviderRegistry stores LLM provider configurations in memory with
// thread-safe access.
type LLMProviderRegistry struct {
	providers map[string]*LLMProviderConfig
	mu        sync.RWMutex
}

// NewLLMProviderRegistry creates a new LLM provider registry.
func NewLLMProviderRegistry(providers map[string]*LLMProviderConfig) *LLMProviderRegistry {
	copied := make(map[string]*LLMProviderConfig, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	return &LLMProviderRegistry{providers: copied}
}

// Get retrieves an LLM provider configuration by name (thread-safe).
func (r *LLMProviderRegistry) Get(name string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrLLMProviderNotFound, name)
	}
	return provider, nil
}

// GetAll returns all LLM provider configurations (thread-safe, returns copy).
func (r *LLMProviderRegistry) GetAll() map[string]*LLMProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*LLMProviderConfig, len(r.providers))
	for k, v := range r.providers {
		result[k] = v
	}
	return result
}

// Has checks if an LLM provider exists in the registry (thread-safe).
func (r *LLMProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.providers[name]
	return exists
}

// Len returns the number of LLM providers in the registry (thread-safe).
func (r *LLMProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
