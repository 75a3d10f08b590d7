package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
)

func fixedStore() *Store {
	s := NewStore()
	at := time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }
	return s
}

func TestNewStoreIdle(t *testing.T) {
	s := NewStore()
	st := s.Snapshot()
	if st.Tracking || st.Last != nil {
		t.Errorf("new store = %+v, want idle", st)
	}
	if st.Health.Status != logwatch.StatusHealthy {
		t.Errorf("health = %q, want healthy", st.Health.Status)
	}
}

func TestStartedObservedTerminal(t *testing.T) {
	s := fixedStore()
	s.SetClientRunning(true)

	st := s.Started("/tmp/debug.log", "boss", "waiting")
	if !st.Tracking || st.StartedBy != "boss" || st.LogPath != "/tmp/debug.log" {
		t.Fatalf("Started = %+v", st)
	}
	if st.Text != "waiting" {
		t.Errorf("text = %q, want waiting", st.Text)
	}
	if !st.ClientRunning {
		t.Error("Started should keep client running flag")
	}

	st = s.Observed(queue.Event{State: queue.Processing, Value: "12"}, "🔹 Queue position: 12")
	if !st.Tracking || st.Last.Value != "12" {
		t.Errorf("Observed processing = %+v", st)
	}

	st = s.Observed(queue.Event{State: queue.Passed}, "passed")
	if st.Tracking {
		t.Error("terminal event should end tracking")
	}
	if st.Reason != "passed" {
		t.Errorf("reason = %q, want passed", st.Reason)
	}
	if got := len(s.History()); got != 2 {
		t.Errorf("history = %d events, want 2", got)
	}
}

func TestStoppedWhenIdle(t *testing.T) {
	s := fixedStore()
	if _, ok := s.Stopped("stopped by boss", "x"); ok {
		t.Error("Stopped on idle store should report false")
	}
	s.Started("/tmp/a", "boss", "")
	st, ok := s.Stopped("stopped by boss", "disabled")
	if !ok || st.Tracking || st.Reason != "stopped by boss" || st.Text != "disabled" {
		t.Errorf("Stopped = %+v, %v", st, ok)
	}
}

func TestStartedResetsHistory(t *testing.T) {
	s := fixedStore()
	s.Started("/tmp/a", "boss", "")
	s.Observed(queue.Event{State: queue.Processing, Value: "3"}, "")
	s.Started("/tmp/a", "boss", "")
	if got := len(s.History()); got != 0 {
		t.Errorf("history after restart = %d, want 0", got)
	}
	if s.Snapshot().Last != nil {
		t.Error("last event should reset on start")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	s := fixedStore()
	s.maxHistory = 3
	s.Started("/tmp/a", "boss", "")
	for i := 10; i > 0; i-- {
		s.Observed(queue.Event{State: queue.Processing, Value: fmt.Sprint(i)}, "")
	}
	h := s.History()
	if len(h) != 3 {
		t.Fatalf("history = %d, want 3", len(h))
	}
	if h[0].Value != "3" || h[2].Value != "1" {
		t.Errorf("history = %+v, want last three oldest first", h)
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	s := fixedStore()
	s.Started("/tmp/a", "boss", "")
	s.Observed(queue.Event{State: queue.Processing, Value: "5"}, "")

	got := s.Snapshot()
	got.Last.Value = "mutated"
	*got.StartedAt = time.Time{}

	again := s.Snapshot()
	if again.Last.Value != "5" {
		t.Error("mutation of Last leaked into store")
	}
	if again.StartedAt.IsZero() {
		t.Error("mutation of StartedAt leaked into store")
	}
}

func TestSetClientRunningReportsChange(t *testing.T) {
	s := NewStore()
	if !s.SetClientRunning(true) {
		t.Error("first change should report true")
	}
	if s.SetClientRunning(true) {
		t.Error("same value should report false")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	s.Started("/tmp/a", "boss", "")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Observed(queue.Event{State: queue.Processing, Value: fmt.Sprint(i)}, "")
			s.SetHealth(logwatch.HealthSnapshot{Status: logwatch.StatusHealthy})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_ = s.History()
		}()
	}
	wg.Wait()
}
