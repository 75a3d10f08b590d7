package logwatch

import "github.com/gfnviewer/queuewatch/internal/queue"

// Deduplicator suppresses repeated queue positions. Terminal events always
// pass; the session ends after one of them anyway.
type Deduplicator struct {
	last    string
	emitted bool
}

// Admit returns the event and true when it should be forwarded.
func (d *Deduplicator) Admit(ev queue.Event) (queue.Event, bool) {
	if ev.State.IsTerminal() {
		return ev, true
	}
	if d.emitted && ev.Value == d.last {
		return queue.Event{}, false
	}
	d.last = ev.Value
	d.emitted = true
	return ev, true
}

// Last returns the most recently admitted queue position, if any.
func (d *Deduplicator) Last() (string, bool) {
	return d.last, d.emitted
}
