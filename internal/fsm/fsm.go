// Package fsm defines the lifecycle states of one keeper instance.
package fsm

import "fmt"

type State string

type Event string

const (
	StateNotRunning State = "not_running"
	StateServing    State = "serving"
	StateStopping   State = "stopping"
)

const (
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventStopped Event = "stopped"
	EventExited  Event = "exited"
	EventFail    Event = "fail"
)

// States lists every state, for exporters that report one series per state.
func States() []State {
	return []State{StateNotRunning, StateServing, StateStopping}
}

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateNotRunning, nil
	}

	switch current {
	case StateNotRunning:
		switch event {
		case EventStart:
			return StateServing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateServing:
		switch event {
		case EventStop:
			return StateStopping, nil
		case EventExited:
			return StateNotRunning, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventStopped:
			return StateNotRunning, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
