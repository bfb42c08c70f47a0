package voicemessage

import (
	"fmt"
)

type State uint

const (
	StateIdle = State(iota)
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown_state_%d", uint(s))
	}
}
