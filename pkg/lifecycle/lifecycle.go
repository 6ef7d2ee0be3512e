package lifecycle

// State is where a registry, or any component driven by a DefaultManager,
// is in its start/stop cycle.
type State int

const (
	// StateStopped is both the initial and the final state.
	StateStopped State = iota
	// StateStarting covers activator startup. Components may already register.
	StateStarting
	StateRunning
	// StateStopping covers the teardown sweep. New registrations are refused.
	StateStopping
	// StateCrashed follows a failed start or a drain that did not finish.
	StateCrashed
)

var stateNames = [...]string{
	StateStopped:  "Stopped",
	StateStarting: "Starting",
	StateRunning:  "Running",
	StateStopping: "Stopping",
	StateCrashed:  "Crashed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Accepting reports whether components and subscriptions may be added in
// state s.
func (s State) Accepting() bool {
	return s == StateStarting || s == StateRunning
}

// EventEmitter receives every state transition.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}
