package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected     bool
	Tracking      bool
	ClientRunning bool
	Health        logwatch.HealthSnapshot
	User          string
	Width         int
}

func New() Model {
	return Model{Health: logwatch.HealthSnapshot{Status: logwatch.StatusHealthy}}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	trackStr := theme.StyleDimmed.Render("idle")
	if m.Tracking {
		trackStr = lipgloss.NewStyle().Foreground(theme.ColorProcessing).Render("tracking")
	}

	clientStr := theme.StyleDimmed.Render("client not running")
	if m.ClientRunning {
		clientStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("client running")
	}

	health := lipgloss.NewStyle().Foreground(theme.HealthColor(string(m.Health.Status))).
		Render(fmt.Sprintf("log: %s", m.Health.Status))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + trackStr + sep + clientStr + sep + health
	if m.User != "" {
		content += sep + theme.StyleDimmed.Render(m.User)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
