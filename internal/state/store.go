// Package state holds the current tracking status shared by the dispatcher,
// the HTTP API and connected clients.
package state

import (
	"sync"
	"time"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
)

const defaultHistory = 32

// ReasonShutdown ends a session when the server exits.
const ReasonShutdown = "shutdown"

type Status struct {
	Tracking      bool                    `json:"tracking"`
	LogPath       string                  `json:"logPath,omitempty"`
	StartedBy     string                  `json:"startedBy,omitempty"`
	StartedAt     *time.Time              `json:"startedAt,omitempty"`
	Last          *queue.Event            `json:"last,omitempty"`
	Text          string                  `json:"text,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	Health        logwatch.HealthSnapshot `json:"health"`
	ClientRunning bool                    `json:"clientRunning"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

func (s Status) clone() Status {
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	if s.Last != nil {
		ev := *s.Last
		s.Last = &ev
	}
	return s
}

type Store struct {
	mu         sync.RWMutex
	status     Status
	history    []queue.Event
	maxHistory int
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		maxHistory: defaultHistory,
		now:        time.Now,
		status:     Status{Health: logwatch.HealthSnapshot{Status: logwatch.StatusHealthy}},
	}
}

// Started resets the status for a new session on path.
func (s *Store) Started(path, actor, text string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	client := s.status.ClientRunning
	s.status = Status{
		Tracking:      true,
		LogPath:       path,
		StartedBy:     actor,
		StartedAt:     &now,
		Text:          text,
		Health:        logwatch.HealthSnapshot{Status: logwatch.StatusHealthy},
		ClientRunning: client,
		UpdatedAt:     now,
	}
	s.history = s.history[:0]
	return s.status.clone()
}

// Observed records a delivered event. A terminal event ends tracking with
// the event's state as the reason.
func (s *Store) Observed(ev queue.Event, text string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Last = &ev
	s.status.Text = text
	s.status.UpdatedAt = s.now()
	if ev.State.IsTerminal() {
		s.status.Tracking = false
		s.status.Reason = ev.State.String()
	}
	s.history = append(s.history, ev)
	if len(s.history) > s.maxHistory {
		s.history = append(s.history[:0], s.history[len(s.history)-s.maxHistory:]...)
	}
	return s.status.clone()
}

// Stopped ends tracking for reason. It reports false when nothing was
// being tracked.
func (s *Store) Stopped(reason, text string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Tracking {
		return s.status.clone(), false
	}
	s.status.Tracking = false
	s.status.Reason = reason
	s.status.Text = text
	s.status.UpdatedAt = s.now()
	return s.status.clone(), true
}

func (s *Store) SetHealth(h logwatch.HealthSnapshot) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Health = h
	s.status.UpdatedAt = s.now()
	return s.status.clone()
}

// SetClientRunning reports whether the value changed.
func (s *Store) SetClientRunning(running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.ClientRunning == running {
		return false
	}
	s.status.ClientRunning = running
	s.status.UpdatedAt = s.now()
	return true
}

func (s *Store) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.clone()
}

// History returns the events of the current or last session, oldest first.
func (s *Store) History() []queue.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]queue.Event, len(s.history))
	copy(out, s.history)
	return out
}
