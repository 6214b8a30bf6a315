package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	os.Setenv("NL2SCHEMA_TEST_VAR", "sk-test-value")
	defer os.Unsetenv("NL2SCHEMA_TEST_VAR")

	in := []byte(`api_key_env: ${NL2SCHEMA_TEST_VAR}
alt: $NL2SCHEMA_TEST_VAR`)

	out := ExpandEnv(in)
	assert.Contains(t, string(out), "sk-test-value")
}

func TestExpandEnvMissingVarExpandsEmpty(t *testing.T) {
	out := ExpandEnv([]byte("value: ${NL2SCHEMA_DEFINITELY_UNSET}"))
	assert.Equal(t, "value: ", string(out))
}
