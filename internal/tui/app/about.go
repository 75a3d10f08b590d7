package app

import (
	"github.com/charmbracelet/glamour"
)

const aboutMarkdown = `# queuewatch

Follows the GeForce NOW queue by reading the client log and shows every
notification the server sends.

| Key | Action |
| --- | ------ |
| s   | start tracking (admin) |
| x   | stop tracking (admin) |
| ?   | toggle this panel |
| q   | quit |

The bar fills from the first queue position seen in the session. A
degraded or failed log status means the server could not read the client
log on recent polls; tracking continues and recovers on its own.
`

// renderAbout renders the about panel for the given terminal width. Raw
// markdown is returned if rendering fails.
func renderAbout(width int) string {
	wrap := 80
	if width > 0 && width-4 < wrap {
		wrap = max(width-4, 20)
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return aboutMarkdown
	}
	out, err := r.Render(aboutMarkdown)
	if err != nil {
		return aboutMarkdown
	}
	return out
}
