package strategy

import (
	"fmt"
	"sync"
)

// StateMachine serializes the bot's lifecycle. Invalid transitions
// return an error and leave the state untouched so a misfired event
// cannot wedge the loop.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle}
}

func (s *StateMachine) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StateMachine) Apply(event Event) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := nextState(s.state, event)
	if !ok {
		return s.state, fmt.Errorf("event %s not valid in state %s", event, s.state)
	}
	s.state = next
	return next, nil
}

func nextState(current State, event Event) (State, bool) {
	// stop and halt apply from anywhere except a completed shutdown
	if current != StateShutdown {
		switch event {
		case EventStop:
			return StateShutdown, true
		case EventHalt:
			if current != StateHalted {
				return StateHalted, true
			}
		}
	}
	switch current {
	case StateIdle:
		if event == EventStart {
			return StateWarming, true
		}
	case StateWarming:
		if event == EventWarmed {
			return StateQuoting, true
		}
	case StateQuoting:
		if event == EventRebalanceNeeded {
			return StateRebalancing, true
		}
	case StateRebalancing:
		if event == EventRebalanced {
			return StateQuoting, true
		}
	case StateHalted:
		if event == EventResume {
			return StateQuoting, true
		}
	}
	return current, false
}
