package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
	"github.com/gfnviewer/queuewatch/internal/state"
)

type recordingSink struct {
	mu       sync.Mutex
	texts    []string
	tracking []state.Status
	health   []logwatch.HealthSnapshot
	notify   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 64)}
}

func (s *recordingSink) QueueEvent(ev queue.Event, text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	s.poke()
}

func (s *recordingSink) TrackingChanged(st state.Status) {
	s.mu.Lock()
	s.tracking = append(s.tracking, st)
	s.mu.Unlock()
	s.poke()
}

func (s *recordingSink) HealthChanged(h logwatch.HealthSnapshot) {
	s.mu.Lock()
	s.health = append(s.health, h)
	s.mu.Unlock()
	s.poke()
}

func (s *recordingSink) poke() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *recordingSink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *recordingSink) Tracking() []state.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]state.Status(nil), s.tracking...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, s *recordingSink, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-s.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not met before deadline")
		}
	}
}

type fakeDetector struct {
	mu      sync.Mutex
	running bool
	err     error
}

func (d *fakeDetector) Running(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running, d.err
}

func (d *fakeDetector) set(running bool) {
	d.mu.Lock()
	d.running = running
	d.mu.Unlock()
}

func statusLine(q string) string {
	return fmt.Sprintf("[2024-03-14 20:15:32.610 5660/ 6032:INFO:streamer_queue.cpp(214)] Queue update (state: InQueue, queue: %s, eta: 180)\n", q)
}

func appendLog(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatal(err)
	}
}

func newTestController(t *testing.T, sink Sink, det ClientDetector) (*Controller, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := os.WriteFile(path, []byte("boot\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c := New(Options{
		LogPath:  path,
		Watch:    logwatch.Options{Interval: 5 * time.Millisecond},
		Sink:     sink,
		Detector: det,
		Logger:   slog.New(slog.DiscardHandler),
	})
	t.Cleanup(c.Close)
	return c, path
}

func TestStartDeliversUntilTerminal(t *testing.T) {
	sink := newRecordingSink()
	c, path := newTestController(t, sink, nil)

	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Running() {
		t.Fatal("Running() = false after Start")
	}
	st := sink.Tracking()[0]
	if !st.Tracking || st.Text != TextWaiting || st.StartedBy != "boss" {
		t.Errorf("first tracking notice = %+v", st)
	}

	appendLog(t, path, statusLine("12"))
	waitFor(t, sink, func() bool { return len(sink.Texts()) == 1 })
	appendLog(t, path, "IPC_STREAMING_SESSION_SETUP_EVENT\n")
	waitFor(t, sink, func() bool { return !c.Running() })

	want := []string{"🔹 Queue position: 12", TextPassed}
	got := sink.Texts()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("texts = %q, want %q", got, want)
	}

	final := c.Store().Snapshot()
	if final.Tracking || final.Reason != "passed" {
		t.Errorf("final status = %+v", final)
	}
	tr := sink.Tracking()
	if last := tr[len(tr)-1]; last.Tracking {
		t.Error("last tracking notice should report idle")
	}
}

func TestStartWhileTracking(t *testing.T) {
	c, _ := newTestController(t, newRecordingSink(), nil)
	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background(), "boss"); !errors.Is(err, ErrAlreadyTracking) {
		t.Errorf("second Start err = %v, want ErrAlreadyTracking", err)
	}
}

func TestStartMissingLog(t *testing.T) {
	sink := newRecordingSink()
	c := New(Options{
		LogPath: filepath.Join(t.TempDir(), "absent.log"),
		Sink:    sink,
		Logger:  slog.New(slog.DiscardHandler),
	})
	defer c.Close()

	if err := c.Start(context.Background(), "boss"); !errors.Is(err, logwatch.ErrLogNotFound) {
		t.Errorf("Start err = %v, want ErrLogNotFound", err)
	}
	if c.Running() {
		t.Error("failed Start should leave controller idle")
	}
	if len(sink.Tracking()) != 0 {
		t.Error("failed Start should not publish")
	}
}

func TestStopWhenIdle(t *testing.T) {
	c, _ := newTestController(t, newRecordingSink(), nil)
	if err := c.Stop("boss"); !errors.Is(err, ErrNotTracking) {
		t.Errorf("Stop err = %v, want ErrNotTracking", err)
	}
}

func TestNoDeliveryAfterStop(t *testing.T) {
	sink := newRecordingSink()
	c, path := newTestController(t, sink, nil)
	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop("boss"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	st := c.Store().Snapshot()
	if st.Tracking || st.Reason != "stopped by boss" || st.Text != TextAdminStopped {
		t.Errorf("status after Stop = %+v", st)
	}

	appendLog(t, path, statusLine("3"))
	time.Sleep(50 * time.Millisecond)
	if got := sink.Texts(); len(got) != 0 {
		t.Errorf("events delivered after Stop: %q", got)
	}
}

func TestRestartIsFreshSession(t *testing.T) {
	sink := newRecordingSink()
	c, path := newTestController(t, sink, nil)

	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Fatal(err)
	}
	appendLog(t, path, statusLine("7"))
	waitFor(t, sink, func() bool { return len(sink.Texts()) == 1 })
	if err := c.Stop("boss"); err != nil {
		t.Fatal(err)
	}

	// Lines written while idle are history for the next session.
	appendLog(t, path, statusLine("6"))
	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Fatal(err)
	}
	// Same value as the previous session is still delivered: the new
	// session has no dedup history.
	appendLog(t, path, statusLine("7"))
	waitFor(t, sink, func() bool { return len(sink.Texts()) == 2 })

	got := sink.Texts()
	if got[1] != "🔹 Queue position: 7" {
		t.Errorf("texts = %q", got)
	}
}

func TestStartRecordsClientState(t *testing.T) {
	det := &fakeDetector{running: false}
	c, _ := newTestController(t, newRecordingSink(), det)
	det.set(true)
	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Fatal(err)
	}
	if !c.Store().Snapshot().ClientRunning {
		t.Error("clientRunning should reflect detector at start")
	}
}

func TestStartWithDetectorError(t *testing.T) {
	det := &fakeDetector{err: errors.New("denied")}
	c, _ := newTestController(t, newRecordingSink(), det)
	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Errorf("detector failure should not block Start: %v", err)
	}
}

func TestWatchClientPublishesChanges(t *testing.T) {
	sink := newRecordingSink()
	det := &fakeDetector{running: true}
	c, _ := newTestController(t, sink, det)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.WatchClient(ctx, 5*time.Millisecond)
		close(done)
	}()

	waitFor(t, sink, func() bool { return len(sink.Tracking()) == 1 })
	det.set(false)
	waitFor(t, sink, func() bool { return len(sink.Tracking()) == 2 })
	cancel()
	<-done

	tr := sink.Tracking()
	if !tr[0].ClientRunning || tr[1].ClientRunning {
		t.Errorf("client transitions = %v, %v", tr[0].ClientRunning, tr[1].ClientRunning)
	}
}

func TestHealthIsPublished(t *testing.T) {
	sink := newRecordingSink()
	c, path := newTestController(t, sink, nil)
	c.watch.FailureThreshold = 1
	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, sink, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.health) > 0
	})
	if got := c.Store().Snapshot().Health.Status; got != logwatch.StatusFailed {
		t.Errorf("stored health = %q, want failed", got)
	}
}

func TestCloseStopsSession(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestController(t, sink, nil)
	if err := c.Start(context.Background(), "boss"); err != nil {
		t.Fatal(err)
	}
	c.Close()
	if c.Running() {
		t.Error("Running() after Close")
	}
	if got := c.Store().Snapshot().Reason; got != state.ReasonShutdown {
		t.Errorf("reason = %q, want shutdown", got)
	}
}
