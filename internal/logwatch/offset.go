package logwatch

// Range is a half-open byte range [Start, End) of a log file.
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// Tracker remembers how much of a growing file has already been read.
// It is owned by a single watch session and is not safe for concurrent use.
type Tracker struct {
	offset int64
}

// NewTracker returns a tracker positioned at initial, typically the file
// length at watch start so that earlier history is never replayed.
func NewTracker(initial int64) *Tracker {
	if initial < 0 {
		initial = 0
	}
	return &Tracker{offset: initial}
}

// Offset returns the last-read byte position.
func (t *Tracker) Offset() int64 {
	return t.offset
}

// Advance compares the current file length against the stored offset.
// Growth returns the unread range and moves the offset to length. No change
// returns false. A shorter file is treated as a rewrite: the offset drops to
// the new length and nothing is returned for this cycle.
func (t *Tracker) Advance(length int64) (Range, bool) {
	switch {
	case length == t.offset:
		return Range{}, false
	case length < t.offset:
		t.offset = length
		return Range{}, false
	}
	r := Range{Start: t.offset, End: length}
	t.offset = length
	return r, true
}

// rewind undoes an Advance whose range could not be read.
func (t *Tracker) rewind(r Range) {
	if t.offset == r.End {
		t.offset = r.Start
	}
}
