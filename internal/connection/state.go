package connection

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle state of the live stream connection.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateFailed
)

var stateNames = [...]string{
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateDisconnected: "disconnected",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalJSON encodes the state as its name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", name)
}

// Event drives a transition of the state machine.
type Event int

const (
	EventOpen Event = iota
	EventClose
	EventError
	EventRetry
)

func (e Event) String() string {
	switch e {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventRetry:
		return "retry"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Next returns the state reached from "from" on event ev.
// The second result is false when the edge does not exist; the state is then
// returned unchanged.
//
//	connecting   --open-->  connected
//	connected    --close--> disconnected
//	connecting   --error--> failed
//	connected    --error--> failed
//	disconnected --retry--> connecting
//	failed       --retry--> connecting
func Next(from State, ev Event) (State, bool) {
	switch ev {
	case EventOpen:
		if from == StateConnecting {
			return StateConnected, true
		}
	case EventClose:
		if from == StateConnected {
			return StateDisconnected, true
		}
	case EventError:
		if from == StateConnecting || from == StateConnected {
			return StateFailed, true
		}
	case EventRetry:
		if from == StateDisconnected || from == StateFailed {
			return StateConnecting, true
		}
	}
	return from, false
}

// StateChange records one observed transition.
type StateChange struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
