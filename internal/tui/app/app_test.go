package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
	"github.com/gfnviewer/queuewatch/internal/state"
	"github.com/gfnviewer/queuewatch/internal/tui/client"
)

type fakeStream struct {
	listens, reads int
}

func (f *fakeStream) Listen(context.Context) tea.Cmd {
	f.listens++
	return func() tea.Msg { return nil }
}

func (f *fakeStream) ReadLoop(context.Context) tea.Cmd {
	f.reads++
	return func() tea.Msg { return nil }
}

type fakeAPI struct {
	starts, stops int
	err           error
}

func (f *fakeAPI) Whoami() (*client.Identity, error) {
	return &client.Identity{User: "alice", Role: "admin"}, f.err
}

func (f *fakeAPI) StartWatch() (*state.Status, error) {
	f.starts++
	return &state.Status{Tracking: true}, f.err
}

func (f *fakeAPI) StopWatch() (*state.Status, error) {
	f.stops++
	return &state.Status{}, f.err
}

func processing(v string) queue.Event {
	return queue.Event{State: queue.Processing, Value: v}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func TestDisconnectOverlay(t *testing.T) {
	m := sized(New(nil, nil))
	m.connected = false

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("disconnect overlay should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting") {
		t.Error("disconnect overlay should contain 'Reconnecting'")
	}
}

func TestConnectionMessagesDriveStream(t *testing.T) {
	ws := &fakeStream{}
	m := sized(New(ws, nil))

	m, _ = update(t, m, client.WSConnectedMsg{})
	if !m.connected || ws.reads != 1 {
		t.Errorf("after connect: connected=%v reads=%d", m.connected, ws.reads)
	}
	m, _ = update(t, m, client.WSQueueMsg{Payload: client.QueuePayload{Event: processing("5"), Text: "🔹 Queue position: 5"}})
	if ws.reads != 2 {
		t.Errorf("queue message should re-arm the read loop, reads=%d", ws.reads)
	}
	m, _ = update(t, m, client.WSDisconnectedMsg{Err: errors.New("eof")})
	if m.connected || ws.listens != 1 {
		t.Errorf("after disconnect: connected=%v listens=%d", m.connected, ws.listens)
	}
}

func TestSnapshotRebuildsHistoryAndProgress(t *testing.T) {
	m := sized(New(&fakeStream{}, nil))
	m, _ = update(t, m, client.WSConnectedMsg{})

	snap := client.SnapshotPayload{
		Status: state.Status{Tracking: true, Text: "🔹 Queue position: 5"},
		History: []queue.Event{
			processing(""),
			processing("20"),
			processing("10"),
			processing("5"),
		},
	}
	m, _ = update(t, m, client.WSSnapshotMsg{Payload: snap})

	if len(m.history) != 4 {
		t.Fatalf("history = %d, want 4", len(m.history))
	}
	if m.firstPos != 20 || m.curPos != 5 {
		t.Errorf("positions = %d/%d, want 20/5", m.firstPos, m.curPos)
	}
	if got := m.Progress(); got != 0.75 {
		t.Errorf("Progress = %v, want 0.75", got)
	}
	v := m.View()
	if !strings.Contains(v, "Queue position: 5") || !strings.Contains(v, "started at 20") {
		t.Errorf("view missing queue details:\n%s", v)
	}
}

func TestHistoryKeepsLastEight(t *testing.T) {
	m := sized(New(&fakeStream{}, nil))
	for i := 20; i > 0; i-- {
		m.observe(processing(fmt.Sprint(i)), "x")
	}
	if len(m.history) != maxHistory {
		t.Fatalf("history = %d, want %d", len(m.history), maxHistory)
	}
	if m.firstPos != 20 || m.curPos != 1 {
		t.Errorf("positions = %d/%d, want 20/1", m.firstPos, m.curPos)
	}
}

func TestTrackingMessageResetsForNewSession(t *testing.T) {
	m := sized(New(&fakeStream{}, nil))
	m.observe(processing("9"), "x")
	m, _ = update(t, m, client.WSTrackingMsg{Payload: client.TrackingPayload{
		Status: state.Status{Tracking: true, Text: "🌀 Waiting for queue information", ClientRunning: true},
	}})
	if len(m.history) != 0 || m.firstPos != 0 {
		t.Error("new session should clear history and progress")
	}
	if !m.statusBar.Tracking || !m.statusBar.ClientRunning {
		t.Errorf("status bar = %+v", m.statusBar)
	}
}

func TestPassedIsFullProgress(t *testing.T) {
	m := sized(New(&fakeStream{}, nil))
	m.observe(processing("4"), "")
	m, _ = update(t, m, client.WSQueueMsg{Payload: client.QueuePayload{Event: queue.Event{State: queue.Passed}, Text: "passed"}})
	if got := m.Progress(); got != 1 {
		t.Errorf("Progress = %v, want 1", got)
	}
}

func TestHealthMessage(t *testing.T) {
	m := sized(New(&fakeStream{}, nil))
	m, _ = update(t, m, client.WSHealthMsg{Payload: client.HealthPayload{
		Health: logwatch.HealthSnapshot{Status: logwatch.StatusDegraded, ConsecutiveFailures: 1, LastError: "permission denied"},
	}})
	m.connected = true
	if m.statusBar.Health.Status != logwatch.StatusDegraded {
		t.Errorf("status bar health = %q", m.statusBar.Health.Status)
	}
	if !strings.Contains(m.View(), "permission denied") {
		t.Error("view should show the log read error")
	}
}

func TestKeysCallAPI(t *testing.T) {
	api := &fakeAPI{}
	m := sized(New(&fakeStream{}, api))

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd == nil {
		t.Fatal("start key should return a command")
	}
	res := cmd().(actionResultMsg)
	if api.starts != 1 || res.err != nil || res.verb != "start" {
		t.Errorf("start: %+v starts=%d", res, api.starts)
	}

	api.err = errors.New("409 already tracking")
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	res = cmd().(actionResultMsg)
	if api.stops != 1 || res.err == nil {
		t.Errorf("stop: %+v stops=%d", res, api.stops)
	}
	m, _ = update(t, m, res)
	m.connected = true
	if !strings.Contains(m.View(), "stop failed") {
		t.Error("view should show the failed action")
	}
}

func TestKeysWithoutAPI(t *testing.T) {
	m := sized(New(&fakeStream{}, nil))
	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")}); cmd != nil {
		t.Error("start without API should be a no-op")
	}
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		first, cur int
		want       float64
	}{
		{0, 0, 0},
		{10, 10, 0},
		{10, 5, 0.5},
		{10, 1, 0.9},
		{4, 8, 0},
	}
	for _, tt := range tests {
		if got := progressFraction(tt.first, tt.cur); got != tt.want {
			t.Errorf("progressFraction(%d, %d) = %v, want %v", tt.first, tt.cur, got, tt.want)
		}
	}
}

func TestBarAnimationSettles(t *testing.T) {
	m := sized(New(&fakeStream{}, nil))
	m, _ = update(t, m, client.WSConnectedMsg{})
	m.observe(processing("10"), "")
	m, cmd := update(t, m, client.WSQueueMsg{Payload: client.QueuePayload{Event: processing("5"), Text: "pos 5"}})
	if cmd == nil || !m.animating {
		t.Fatal("queue update should start the bar animation")
	}

	for i := 0; i < 10*fps && m.animating; i++ {
		m, _ = update(t, m, frameMsg{})
	}
	if m.animating {
		t.Fatal("animation did not settle")
	}
	if m.barPos != 0.5 {
		t.Errorf("barPos = %v, want 0.5", m.barPos)
	}
}

func TestHelpToggle(t *testing.T) {
	m := sized(New(&fakeStream{}, nil))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	if !m.showHelp || !strings.Contains(m.View(), "queuewatch") {
		t.Error("help panel should be shown")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	if m.showHelp {
		t.Error("second ? should hide help")
	}
}

func TestWhoamiLabelsStatusBar(t *testing.T) {
	m := sized(New(&fakeStream{}, &fakeAPI{}))
	m, _ = update(t, m, client.WSConnectedMsg{})

	m, _ = update(t, m, m.whoami()())
	if m.statusBar.User != "alice (admin)" {
		t.Errorf("status bar user = %q", m.statusBar.User)
	}

	failing := sized(New(&fakeStream{}, &fakeAPI{err: errors.New("401 unauthorized")}))
	failing, _ = update(t, failing, failing.whoami()())
	if !failing.flashErr || !strings.Contains(failing.flash, "401 unauthorized") {
		t.Errorf("flash = %q, err=%v", failing.flash, failing.flashErr)
	}
}
