package reconnect

// State is the lifecycle position of the re-login state machine.
type State int

const (
	// Idle means no re-login flow is running.
	Idle State = iota
	// Reconnecting means a re-login flow holds the single-flight guard.
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
