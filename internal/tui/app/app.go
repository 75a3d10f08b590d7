package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/gfnviewer/queuewatch/internal/dispatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
	"github.com/gfnviewer/queuewatch/internal/state"
	"github.com/gfnviewer/queuewatch/internal/tui/client"
	"github.com/gfnviewer/queuewatch/internal/tui/theme"
	"github.com/gfnviewer/queuewatch/internal/tui/views/status"
)

const (
	maxHistory = 8
	fps        = 30
)

// Stream is the live connection to the server.
type Stream interface {
	Listen(ctx context.Context) tea.Cmd
	ReadLoop(ctx context.Context) tea.Cmd
}

// API starts and stops tracking on the server.
type API interface {
	Whoami() (*client.Identity, error)
	StartWatch() (*state.Status, error)
	StopWatch() (*state.Status, error)
}

type entry struct {
	At    time.Time
	State queue.State
	Text  string
}

// actionResultMsg reports the outcome of a start or stop request.
type actionResultMsg struct {
	verb string
	err  error
}

// identityMsg carries the caller identity reported by the server.
type identityMsg struct {
	id  *client.Identity
	err error
}

// frameMsg advances the progress bar animation.
type frameMsg struct{}

func frameTick() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return frameMsg{} })
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     Stream
	api    API
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	help   help.Model
	width  int
	height int

	connected bool
	status    state.Status
	history   []entry

	// Queue progress: first and latest numeric positions of the session.
	firstPos int
	curPos   int

	spinner   spinner.Model
	bar       progress.Model
	statusBar status.Model
	flash     string
	flashErr  bool

	// The bar follows Progress() on a spring.
	spring    harmonica.Spring
	barPos    float64
	barVel    float64
	animating bool

	showHelp bool
	helpText string
}

// New creates the root model.
func New(ws Stream, api API) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		api:       api,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:       progress.New(progress.WithGradient(theme.ColorProgressStart, theme.ColorProgressEnd)),
		statusBar: status.New(),
		spring:    harmonica.NewSpring(harmonica.FPS(fps), 6.0, 1.0),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.spinner.Tick)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.bar.Width = min(max(msg.Width-12, 10), 60)
		m.help.Width = msg.Width
		if m.showHelp {
			m.helpText = renderAbout(m.width)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case frameMsg:
		target := m.Progress()
		m.barPos, m.barVel = m.spring.Update(m.barPos, m.barVel, target)
		if abs(m.barPos-target) < 0.001 && abs(m.barVel) < 0.001 {
			m.barPos, m.barVel = target, 0
			m.animating = false
			return m, nil
		}
		return m, frameTick()

	case actionResultMsg:
		if msg.err != nil {
			m.flash = fmt.Sprintf("%s failed: %v", msg.verb, msg.err)
			m.flashErr = true
		} else {
			m.flash = msg.verb + " ok"
			m.flashErr = false
		}
		return m, nil

	case identityMsg:
		if msg.err != nil {
			m.flash = fmt.Sprintf("whoami failed: %v", msg.err)
			m.flashErr = true
			return m, nil
		}
		m.statusBar.User = fmt.Sprintf("%s (%s)", msg.id.User, msg.id.Role)
		return m, nil

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), m.whoami())

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		m.setStatus(msg.Payload.Status)
		m.history = nil
		m.firstPos, m.curPos = 0, 0
		for _, ev := range msg.Payload.History {
			m.observe(ev, dispatch.Text(ev))
		}
		anim := m.animate()
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), anim)

	case client.WSQueueMsg:
		m.observe(msg.Payload.Event, msg.Payload.Text)
		m.status.Text = msg.Payload.Text
		ev := msg.Payload.Event
		m.status.Last = &ev
		anim := m.animate()
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), anim)

	case client.WSTrackingMsg:
		st := msg.Payload.Status
		if st.Tracking && st.Last == nil {
			// A fresh session.
			m.history = nil
			m.firstPos, m.curPos = 0, 0
			m.barPos, m.barVel = 0, 0
		}
		m.setStatus(st)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSHealthMsg:
		m.status.Health = msg.Payload.Health
		m.statusBar.Health = msg.Payload.Health
		return m, m.ws.ReadLoop(m.ctx)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		if m.showHelp {
			m.helpText = renderAbout(m.width)
		}
		return m, nil

	case m.api == nil:
		return m, nil

	case key.Matches(msg, m.keys.Start):
		return m, action("start", m.api.StartWatch)

	case key.Matches(msg, m.keys.Stop):
		return m, action("stop", m.api.StopWatch)
	}
	return m, nil
}

func action(verb string, call func() (*state.Status, error)) tea.Cmd {
	return func() tea.Msg {
		_, err := call()
		return actionResultMsg{verb: verb, err: err}
	}
}

func (m Model) whoami() tea.Cmd {
	if m.api == nil {
		return nil
	}
	api := m.api
	return func() tea.Msg {
		id, err := api.Whoami()
		return identityMsg{id: id, err: err}
	}
}

// animate starts the bar animation unless it is already running.
func (m *Model) animate() tea.Cmd {
	if m.animating {
		return nil
	}
	m.animating = true
	return frameTick()
}

func (m *Model) setStatus(st state.Status) {
	m.status = st
	m.statusBar.Tracking = st.Tracking
	m.statusBar.ClientRunning = st.ClientRunning
	m.statusBar.Health = st.Health
}

func (m *Model) observe(ev queue.Event, text string) {
	at := ev.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	m.history = append(m.history, entry{At: at, State: ev.State, Text: text})
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}

	if ev.State != queue.Processing {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(ev.Value))
	if err != nil || n <= 0 {
		return
	}
	if n > m.firstPos {
		m.firstPos = n
	}
	m.curPos = n
}

// Progress returns how far through the queue the session is, in [0, 1].
func (m Model) Progress() float64 {
	if m.status.Last != nil && m.status.Last.State == queue.Passed {
		return 1
	}
	return progressFraction(m.firstPos, m.curPos)
}

func progressFraction(first, cur int) float64 {
	if first <= 0 || cur <= 0 {
		return 0
	}
	f := float64(first-cur) / float64(first)
	return min(max(f, 0), 1)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.statusBar.View()}
	if m.showHelp {
		sections = append(sections, m.helpText)
	} else if !m.connected {
		sections = append(sections, m.renderDisconnected())
	} else {
		sections = append(sections, m.renderQueue(), m.renderHistory())
	}
	if m.flash != "" {
		style := theme.StyleDimmed
		if m.flashErr {
			style = theme.StyleError
		}
		sections = append(sections, style.Render("  "+m.flash))
	}
	sections = append(sections, "  "+m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	box := theme.StyleBorder.
		BorderForeground(theme.ColorDanger).
		Render(theme.StyleHeader.Render("DISCONNECTED") + "\n" +
			theme.StyleDimmed.Render(m.spinner.View()+" Reconnecting to server..."))
	return lipgloss.Place(max(m.width, 40), 7, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderQueue() string {
	var lines []string

	text := m.status.Text
	if text == "" {
		text = "Queue tracking is off"
	}
	stateName := ""
	if m.status.Last != nil {
		stateName = m.status.Last.State.String()
	}
	head := lipgloss.NewStyle().Bold(true).Foreground(theme.StateColor(stateName)).Render(text)
	if m.status.Tracking {
		head = m.spinner.View() + " " + head
	}
	lines = append(lines, head)

	if m.firstPos > 0 {
		lines = append(lines, m.bar.ViewAs(m.barPos))
		lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("position %d, started at %d", m.curPos, m.firstPos)))
	}

	if m.status.Tracking && m.status.StartedBy != "" {
		since := ""
		if m.status.StartedAt != nil {
			since = " at " + m.status.StartedAt.Local().Format("15:04:05")
		}
		lines = append(lines, theme.StyleDimmed.Render("started by "+m.status.StartedBy+since))
	} else if !m.status.Tracking && m.status.Reason != "" {
		lines = append(lines, theme.StyleDimmed.Render("ended: "+m.status.Reason))
	}
	if h := m.status.Health; h.LastError != "" && h.ConsecutiveFailures > 0 {
		lines = append(lines, theme.StyleError.Render("log read error: "+h.LastError))
	}

	width := max(m.width-2, 38)
	return theme.StyleBorder.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderHistory() string {
	lines := []string{theme.StyleHeader.Render("Recent")}
	if len(m.history) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  no notifications yet"))
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		e := m.history[i]
		name := e.State.String()
		glyph := lipgloss.NewStyle().Foreground(theme.StateColor(name)).Render(theme.StateGlyph(name))
		lines = append(lines, fmt.Sprintf("  %s %s  %s",
			theme.StyleDimmed.Render(e.At.Local().Format("15:04:05")), glyph, e.Text))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
