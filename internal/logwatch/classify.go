package logwatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gfnviewer/queuewatch/internal/queue"
)

// Default markers written by the streaming client.
const (
	MarkerStopped = "onStopResult"
	MarkerPassed  = "IPC_STREAMING_SESSION_SETUP_EVENT"
	MarkerFailed  = "IPC_STREAMING_FAILURE_EVENT"

	// DefaultStatusPattern matches structured queue status lines. Group 4 is
	// the queue position.
	DefaultStatusPattern = `\[(.+)/\s*(.+):INFO:.+\]\s*.*\(state: (.*), queue: (.*), eta: (.*)\)`

	statusValueGroup = 4
)

var defaultStatusRe = regexp.MustCompile(DefaultStatusPattern)

// Rule recognizes one kind of event in a chunk of log text.
type Rule interface {
	Match(text string) (queue.Event, bool)
}

// MarkerRule fires when the chunk contains a fixed substring.
type MarkerRule struct {
	Marker string
	State  queue.State
}

func (r MarkerRule) Match(text string) (queue.Event, bool) {
	if r.Marker == "" || !strings.Contains(text, r.Marker) {
		return queue.Event{}, false
	}
	return queue.Event{State: r.State}, true
}

// StatusRule extracts the queue position from the last structured status
// line in the chunk. Earlier lines batched into the same read are stale.
type StatusRule struct {
	re *regexp.Regexp
}

// NewStatusRule compiles pattern. An empty pattern selects the default.
func NewStatusRule(pattern string) (StatusRule, error) {
	if pattern == "" {
		return StatusRule{re: defaultStatusRe}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return StatusRule{}, fmt.Errorf("compile status pattern: %w", err)
	}
	if re.NumSubexp() < statusValueGroup {
		return StatusRule{}, fmt.Errorf("status pattern has %d groups, need at least %d", re.NumSubexp(), statusValueGroup)
	}
	return StatusRule{re: re}, nil
}

func (r StatusRule) Match(text string) (queue.Event, bool) {
	matches := r.re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return queue.Event{}, false
	}
	last := matches[len(matches)-1]
	return queue.Event{State: queue.Processing, Value: last[statusValueGroup]}, true
}

// Markers overrides the terminal marker strings. Empty fields keep the
// defaults.
type Markers struct {
	Stopped       string
	Passed        string
	Failed        string
	StatusPattern string
}

// Classifier evaluates its rules in order over a whole chunk; the first
// rule that matches wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from explicit rules.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier returns the stock rule order: stopped, passed, failed,
// then structured status.
func DefaultClassifier() *Classifier {
	c, _ := NewMarkerClassifier(Markers{})
	return c
}

// NewMarkerClassifier builds the stock rule order with overridden markers.
func NewMarkerClassifier(m Markers) (*Classifier, error) {
	status, err := NewStatusRule(m.StatusPattern)
	if err != nil {
		return nil, err
	}
	return NewClassifier(
		MarkerRule{Marker: orDefault(m.Stopped, MarkerStopped), State: queue.Stopped},
		MarkerRule{Marker: orDefault(m.Passed, MarkerPassed), State: queue.Passed},
		MarkerRule{Marker: orDefault(m.Failed, MarkerFailed), State: queue.Failed},
		status,
	), nil
}

// Classify returns the event the chunk represents, or false when nothing in
// it is worth reporting.
func (c *Classifier) Classify(text string) (queue.Event, bool) {
	for _, r := range c.rules {
		if ev, ok := r.Match(text); ok {
			return ev, true
		}
	}
	return queue.Event{}, false
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
