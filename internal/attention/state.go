// Package attention classifies sustained attention from head pose, eye
// openness and face presence, with debounced transitions and session
// accounting.
package attention

import "fmt"

// State is a committed attention label.
type State int

const (
	Absent State = iota
	Attentive
	LookingAway
	Drowsy
)

var stateNames = map[State]string{
	Absent:      "absent",
	Attentive:   "attentive",
	LookingAway: "looking_away",
	Drowsy:      "drowsy",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState parses the text form produced by String.
func ParseState(text string) (State, error) {
	for s, name := range stateNames {
		if name == text {
			return s, nil
		}
	}
	return Absent, fmt.Errorf("unknown attention state %q", text)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
