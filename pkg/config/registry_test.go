package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineRegistryGetAndDefault(t *testing.T) {
	reg := NewPipelineRegistry(map[string]*PipelineConfig{
		"default": {Description: "standard"},
		"strict":  {Description: "strict"},
	}, "default")

	p, err := reg.Get("default")
	require.NoError(t, err)
	assert.Equal(t, "standard", p.Description)

	d, err := reg.GetDefault()
	require.NoError(t, err)
	assert.Equal(t, "standard", d.Description)

	assert.True(t, reg.Has("strict"))
	assert.Equal(t, 2, reg.Len())

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestPipelineRegistryDefaultMissingErrors(t *testing.T) {
	reg := NewPipelineRegistry(map[string]*PipelineConfig{"only": {}}, "")
	_, err := reg.GetDefault()
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestPipelineRegistryIsDefensiveCopy(t *testing.T) {
	src := map[string]*PipelineConfig{"default": {Description: "original"}}
	reg := NewPipelineRegistry(src, "default")

	src["default"] = &PipelineConfig{Description: "mutated after construction"}

	p, err := reg.Get("default")
	require.NoError(t, err)
	assert.Equal(t, "original", p.Description)
}

func TestSubstepRegistryGet(t *testing.T) {
	reg := NewSubstepRegistry(map[string]*SubstepConfig{
		"2.9": {Description: "constraint hints"},
	})

	s, err := reg.Get("2.9")
	require.NoError(t, err)
	assert.Equal(t, "constraint hints", s.Description)

	_, err = reg.Get("99.9")
	assert.ErrorIs(t, err, ErrSubstepNotFound)
	assert.Equal(t, 1, reg.Len())
}

func TestLLMProviderRegistryGet(t *testing.T) {
	reg := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"default": {Model: "gemini-2.0-flash-thinking-exp-01-21"},
	})

	p, err := reg.Get("default")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash-thinking-exp-01-21", p.Model)

	assert.True(t, reg.Has("default"))
	assert.False(t, reg.Has("nope"))

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrLLMProviderNotFound)
}
