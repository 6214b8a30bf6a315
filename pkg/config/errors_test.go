package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorFormatting(t *testing.T) {
	base := errors.New("boom")

	withField := NewValidationError("pipeline", "default", "llm_provider", base)
	assert.Equal(t, `pipeline 'default': field 'llm_provider': boom`, withField.Error())
	assert.ErrorIs(t, withField, base)

	withoutField := NewValidationError("defaults", "", "", base)
	assert.Equal(t, `defaults '': boom`, withoutField.Error())
}

func TestLoadErrorFormatting(t *testing.T) {
	base := errors.New("file vanished")
	err := NewLoadError("compiler.yaml", base)
	assert.Equal(t, "failed to load compiler.yaml: file vanished", err.Error())
	assert.ErrorIs(t, err, base)
}
