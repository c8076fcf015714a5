package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPathTransitions(t *testing.T) {
	path := []Status{StatusPlaced, StatusPreparing, StatusReady, StatusFulfilled, StatusRefunded}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestSelfTransitionIsAlwaysAllowed(t *testing.T) {
	for s := range validNext {
		assert.True(t, CanTransition(s, s), "%s -> %s", s, s)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []Status{StatusCancelled, StatusRefunded} {
		assert.True(t, terminal.Terminal())
		for s := range validNext {
			if s == terminal {
				continue
			}
			assert.False(t, CanTransition(terminal, s), "%s -> %s should be rejected", terminal, s)
		}
	}
}

func TestCheckTransitionNamesBothStates(t *testing.T) {
	err := CheckTransition(StatusCancelled, StatusFulfilled)
	require.Error(t, err)

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusCancelled, ite.From)
	assert.Equal(t, StatusFulfilled, ite.To)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Contains(t, err.Error(), "fulfilled")
}

func TestDelayedCanResume(t *testing.T) {
	assert.True(t, CanTransition(StatusDelayed, StatusPreparing))
	assert.True(t, CanTransition(StatusDelayed, StatusReady))
	assert.False(t, CanTransition(StatusDelayed, StatusFulfilled))
}

func TestFulfilledOnlyRefunds(t *testing.T) {
	assert.True(t, CanTransition(StatusFulfilled, StatusRefunded))
	assert.False(t, CanTransition(StatusFulfilled, StatusPreparing))
	assert.False(t, CanTransition(StatusFulfilled, StatusCancelled))
}
