package logwatch

import (
	"errors"
	"testing"
)

func TestHealthTransitions(t *testing.T) {
	h := newHealth(3)

	if snap, changed := h.snapshotAndEmit(); changed || snap.Status != StatusHealthy {
		t.Fatalf("initial = %+v changed=%v", snap, changed)
	}

	h.recordFailure(errors.New("sharing violation"))
	snap, changed := h.snapshotAndEmit()
	if !changed || snap.Status != StatusDegraded {
		t.Fatalf("after 1 failure = %+v changed=%v", snap, changed)
	}
	if snap.LastError != "sharing violation" {
		t.Errorf("LastError = %q", snap.LastError)
	}

	h.recordFailure(errors.New("again"))
	if _, changed := h.snapshotAndEmit(); changed {
		t.Error("still degraded, should not re-emit")
	}

	h.recordFailure(errors.New("third"))
	if snap, changed := h.snapshotAndEmit(); !changed || snap.Status != StatusFailed {
		t.Fatalf("after 3 failures = %+v changed=%v", snap, changed)
	}

	h.recordSuccess()
	snap, changed = h.snapshotAndEmit()
	if !changed || snap.Status != StatusHealthy || snap.ConsecutiveFailures != 0 {
		t.Fatalf("after success = %+v changed=%v", snap, changed)
	}
	if snap.LastError != "third" {
		t.Errorf("LastError should be retained for visibility, got %q", snap.LastError)
	}
}

func TestHealthDefaultThreshold(t *testing.T) {
	h := newHealth(0)
	for i := 0; i < defaultFailureThreshold-1; i++ {
		h.recordFailure(errors.New("x"))
	}
	if got := h.snapshot().Status; got != StatusDegraded {
		t.Errorf("status = %v, want degraded", got)
	}
	h.recordFailure(errors.New("x"))
	if got := h.snapshot().Status; got != StatusFailed {
		t.Errorf("status = %v, want failed", got)
	}
}
