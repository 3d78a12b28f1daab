package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	machine := newStateMachine()
	for _, next := range []State{
		StateContextBuilding,
		StateToughLoveEvaluating,
		StateComposingPrompt,
		StateCitingSources,
		StateGenerating,
		StateComplete,
	} {
		require.NoError(t, machine.transition(next))
	}
	assert.True(t, machine.current.Terminal())
}

func TestStateMachineCancelledOnlyFromGenerating(t *testing.T) {
	machine := newStateMachine()
	assert.Error(t, machine.transition(StateCancelled))

	require.NoError(t, machine.transition(StateContextBuilding))
	assert.Error(t, machine.transition(StateCancelled))

	require.NoError(t, machine.transition(StateToughLoveEvaluating))
	require.NoError(t, machine.transition(StateComposingPrompt))
	require.NoError(t, machine.transition(StateGenerating))
	assert.NoError(t, machine.transition(StateCancelled))
}

func TestStateMachineErrorFromAnyNonTerminal(t *testing.T) {
	for _, from := range []State{
		StateReceived,
		StateContextBuilding,
		StateToughLoveEvaluating,
		StateComposingPrompt,
		StateCitingSources,
		StateGenerating,
	} {
		machine := &stateMachine{current: from}
		assert.NoError(t, machine.fail(), "error must be reachable from %s", from)
	}

	for _, from := range []State{StateComplete, StateError, StateCancelled} {
		machine := &stateMachine{current: from}
		assert.Error(t, machine.fail(), "terminal state %s must not transition", from)
	}
}

func TestStateMachineNoSkippingAhead(t *testing.T) {
	machine := newStateMachine()
	assert.Error(t, machine.transition(StateGenerating))
	assert.Error(t, machine.transition(StateComplete))
}
