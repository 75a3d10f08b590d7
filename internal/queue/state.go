// Package queue defines the session-state vocabulary shared by the log
// watcher, the dispatcher and every subscriber.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

type State int

const (
	Processing State = iota
	Passed
	Stopped
	Failed
)

var stateNames = map[State]string{
	Processing: "processing",
	Passed:     "passed",
	Stopped:    "stopped",
	Failed:     "failed",
}

var stateFromName = map[string]State{
	"processing": Processing,
	"passed":     Passed,
	"stopped":    Stopped,
	"failed":     Failed,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the state ends a watch session.
func (s State) IsTerminal() bool {
	return s == Passed || s == Stopped || s == Failed
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := stateFromName[name]
	if !ok {
		return fmt.Errorf("unknown queue state %q", name)
	}
	*s = v
	return nil
}

// ParseState converts a lowercase state name back into a State.
func ParseState(name string) (State, bool) {
	s, ok := stateFromName[name]
	return s, ok
}

// Event is the classified outcome of one poll cycle. Value carries the
// queue position and is only meaningful for Processing.
type Event struct {
	State      State     `json:"state"`
	Value      string    `json:"value,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
}
