package motion

import "encoding/json"

// State is the coarse pedestrian activity derived from one window.
type State int

const (
	// Unknown is the state before any window has completed, and the result of
	// classifying a non-finite variance.
	Unknown State = iota
	Stopped
	SlowWalking
	FastWalking
)

var stateNames = map[State]string{
	Unknown:     "unknown",
	Stopped:     "stopped",
	SlowWalking: "slow_walking",
	FastWalking: "fast_walking",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Label is the human-readable status shown in logs.
func (s State) Label() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case SlowWalking:
		return "Slow Walking"
	case FastWalking:
		return "Fast Walking"
	default:
		return "Unknown"
	}
}

// Moving collapses the walking states into a single running flag.
func (s State) Moving() bool { return s == SlowWalking || s == FastWalking }

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	*s = ParseState(name)
	return nil
}

// ParseState maps a state name back to its State. Unrecognised names map to
// Unknown.
func ParseState(name string) State {
	for s, n := range stateNames {
		if n == name {
			return s
		}
	}
	return Unknown
}

// Classify maps a window variance onto a State. Both boundaries belong to
// SlowWalking. There is no hysteresis: every window is classified fresh.
func Classify(variance, stationary, slowWalk float64) State {
	switch {
	case variance < stationary:
		return Stopped
	case stationary <= variance && variance <= slowWalk:
		return SlowWalking
	case variance > slowWalk:
		return FastWalking
	default:
		// NaN fails every comparison.
		return Unknown
	}
}
