package convergence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardConvergesImmediately(t *testing.T) {
	g := NewGuard("schema_connectivity", Budgets.Connectivity)

	assert.False(t, g.Tick(true))
	assert.Equal(t, 0, g.Iterations())
	assert.False(t, g.ForcedPassed())
	assert.Empty(t, g.Warning())
}

func TestGuardForcedPassOnBudgetExhaustion(t *testing.T) {
	g := NewGuard("schema_connectivity", 3)

	assert.True(t, g.Tick(false))
	assert.True(t, g.Tick(false))
	// Third tick hits the budget and forces the loop to exit.
	assert.False(t, g.Tick(false))

	assert.Equal(t, 3, g.Iterations())
	assert.True(t, g.ForcedPassed())
	assert.Equal(t, "schema_connectivity: loop exhausted its budget of 3 iterations; forced pass", g.Warning())
}

func TestGuardConvergesBeforeBudgetExhausted(t *testing.T) {
	g := NewGuard("relation_validation", 3)

	assert.True(t, g.Tick(false))
	assert.False(t, g.Tick(true))

	assert.Equal(t, 1, g.Iterations())
	assert.False(t, g.ForcedPassed())
	assert.Empty(t, g.Warning())
}

func TestGuardKeys(t *testing.T) {
	g := NewGuard("schema_connectivity", Budgets.Connectivity)
	assert.Equal(t, "schema_connectivity_iterations", g.IterationsKey())
	assert.Equal(t, "schema_connectivity_forced_passed", g.ForcedPassKey())
}
