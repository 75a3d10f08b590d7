package dispatch

import "github.com/gfnviewer/queuewatch/internal/queue"

// Messages shown to subscribers.
const (
	TextWaiting      = "🌀 Waiting for queue information"
	TextPassed       = "🔸 The queue has passed, entering the game"
	TextStopped      = "🔻 Queue waiting stopped"
	TextFailed       = "❌ Internal streaming error"
	TextAdminStopped = "The administrator has disabled queue tracking"
	TextShutdown     = "Queue tracking server is shutting down"

	positionPrefix = "🔹 Queue position: "
)

// Text renders the subscriber message for ev.
func Text(ev queue.Event) string {
	switch ev.State {
	case queue.Processing:
		return positionPrefix + ev.Value
	case queue.Passed:
		return TextPassed
	case queue.Stopped:
		return TextStopped
	case queue.Failed:
		return TextFailed
	}
	return ""
}
