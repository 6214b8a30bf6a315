package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessPolicyIsValid(t *testing.T) {
	tests := []struct {
		name   string
		policy SuccessPolicy
		valid  bool
	}{
		{"all", SuccessPolicyAll, true},
		{"any", SuccessPolicyAny, true},
		{"invalid", SuccessPolicy("majority"), false},
		{"empty", SuccessPolicy(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.policy.IsValid())
		})
	}
}

func TestLLMProviderTypeIsValid(t *testing.T) {
	tests := []struct {
		name     string
		provider LLMProviderType
		valid    bool
	}{
		{"google", LLMProviderTypeGoogle, true},
		{"openai", LLMProviderTypeOpenAI, true},
		{"anthropic", LLMProviderTypeAnthropic, true},
		{"vertexai", LLMProviderTypeVertexAI, true},
		{"invalid", LLMProviderType("grok"), false},
		{"empty", LLMProviderType(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.provider.IsValid())
		})
	}
}
