package config

// SuccessPolicy defines success criteria for a fanned-out substep group —
// carried over from the teacher's parallel-stage success policy, repurposed
// for substep.FanOut groups (e.g. per-entity attribute mining in phase 2).
type SuccessPolicy string

const (
	// SuccessPolicyAll requires every fan-out element to succeed.
	SuccessPolicyAll SuccessPolicy = "all"
	// SuccessPolicyAny requires at least one fan-out element to succeed (default).
	SuccessPolicyAny SuccessPolicy = "any"
)

// IsValid checks if the success policy is valid.
func (p SuccessPolicy) IsValid() bool {
	return p == SuccessPolicyAll || p == SuccessPolicyAny
}

// LLMProviderType defines supported LLM providers.
type LLMProviderType string

const (
	LLMProviderTypeGoogle    LLMProviderType = "google"
	LLMProviderTypeOpenAI    LLMProviderType = "openai"
	LLMProviderTypeAnthropic LLMProviderType = "anthropic"
	LLMProviderTypeVertexAI  LLMProviderType = "vertexai"
)

// IsValid checks if the LLM provider type is valid.
func (t LLMProviderType) IsValid() bool {
	switch t {
	case LLMProviderTypeGoogle, LLMProviderTypeOpenAI, LLMProviderTypeAnthropic, LLMProviderTypeVertexAI:
		return true
	default:
		return false
	}
}
