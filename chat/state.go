package chat

import "fmt"

// State is a phase of processing one inbound message. Transitions are a
// total function over (state, next) pairs so cancellation and error paths
// are testable without a real stream.
type State string

const (
	StateReceived            State = "received"
	StateContextBuilding     State = "context_building"
	StateToughLoveEvaluating State = "tough_love_evaluating"
	StateComposingPrompt     State = "composing_prompt"
	StateCitingSources       State = "citing_sources"
	StateGenerating          State = "generating"
	StateComplete            State = "complete"
	StateError               State = "error"
	StateCancelled           State = "cancelled"
)

// transitions lists the allowed next states. Context building and
// tough-love evaluation run concurrently; the reported state moves through
// both in order once the joint phase finishes. Citations may be emitted
// before generation (the ranked sources are known by then) or after it.
var transitions = map[State][]State{
	StateReceived:            {StateContextBuilding, StateError},
	StateContextBuilding:     {StateToughLoveEvaluating, StateError},
	StateToughLoveEvaluating: {StateComposingPrompt, StateError},
	StateComposingPrompt:     {StateCitingSources, StateGenerating, StateError},
	StateCitingSources:       {StateGenerating, StateComplete, StateError},
	StateGenerating:          {StateCitingSources, StateComplete, StateError, StateCancelled},
	StateComplete:            nil,
	StateError:               nil,
	StateCancelled:           nil,
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

type stateMachine struct {
	current State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateReceived}
}

func (m *stateMachine) transition(next State) error {
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			return nil
		}
	}
	return fmt.Errorf("illegal state transition: %s -> %s", m.current, next)
}

// fail moves to the error state; valid from any non-terminal state.
func (m *stateMachine) fail() error {
	return m.transition(StateError)
}
