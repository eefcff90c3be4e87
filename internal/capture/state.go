package capture

// State is a recording's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRecording
	StateReconnecting
	StateError
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRecording:
		return "recording"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

var allowedTransitions = map[State][]State{
	StateIdle:         {StateConnecting, StateEnded},
	StateConnecting:   {StateRecording, StateError, StateEnded},
	StateRecording:    {StateReconnecting, StateError, StateEnded},
	StateReconnecting: {StateRecording, StateError, StateEnded},
	StateError:        {StateEnded},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
