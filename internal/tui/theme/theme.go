// Package theme provides the Lip Gloss color palette and reusable styles
// for the queuewatch TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Queue state colors.
var (
	ColorProcessing = lipgloss.Color("#3b82f6")
	ColorPassed     = lipgloss.Color("#16a34a")
	ColorStopped    = lipgloss.Color("#d97706")
	ColorFailed     = lipgloss.Color("#dc2626")
	ColorIdle       = lipgloss.Color("#4b5563")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// Progress bar gradient.
var (
	ColorProgressStart = "#7c3aed"
	ColorProgressEnd   = "#22c55e"
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a queue state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "processing":
		return ColorProcessing
	case "passed":
		return ColorPassed
	case "stopped":
		return ColorStopped
	case "failed":
		return ColorFailed
	default:
		return ColorDefault
	}
}

// HealthColor returns the color for a watch health status.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// StateGlyph returns a Unicode glyph representing a queue state.
func StateGlyph(state string) string {
	switch state {
	case "processing":
		return "◌"
	case "passed":
		return "✓"
	case "stopped":
		return "■"
	case "failed":
		return "✗"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
