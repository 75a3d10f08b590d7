package logwatch

import (
	"sync"
	"time"
)

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

const defaultFailureThreshold = 3

// HealthSnapshot is a point-in-time copy of a watcher's cycle health.
type HealthSnapshot struct {
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastError           string       `json:"lastError,omitempty"`
	LastFailure         time.Time    `json:"lastFailure,omitempty"`
}

// health counts consecutive failed poll cycles. The poll loop writes it while
// Stats readers may call snapshot from other goroutines.
type health struct {
	mu                sync.Mutex
	threshold         int
	failures          int
	lastErr           string
	lastFail          time.Time
	lastEmittedStatus HealthStatus
}

func newHealth(threshold int) *health {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &health{threshold: threshold, lastEmittedStatus: StatusHealthy}
}

func (h *health) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
}

func (h *health) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastErr = err.Error()
	h.lastFail = time.Now()
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *health) statusLocked() HealthStatus {
	switch {
	case h.failures >= h.threshold:
		return StatusFailed
	case h.failures > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

func (h *health) snapshotLocked() HealthSnapshot {
	return HealthSnapshot{
		Status:              h.statusLocked(),
		ConsecutiveFailures: h.failures,
		LastError:           h.lastErr,
		LastFailure:         h.lastFail,
	}
}

func (h *health) snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// snapshotAndEmit returns the current snapshot and whether the status
// changed since the last emission.
func (h *health) snapshotAndEmit() (HealthSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := h.snapshotLocked()
	changed := snap.Status != h.lastEmittedStatus
	if changed {
		h.lastEmittedStatus = snap.Status
	}
	return snap, changed
}
