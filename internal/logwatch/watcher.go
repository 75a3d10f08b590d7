package logwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gfnviewer/queuewatch/internal/queue"
)

// ErrLogNotFound is returned by Start when the client log does not exist,
// which means the streaming client is not installed or never ran.
var ErrLogNotFound = errors.New("client log not found")

const (
	DefaultInterval = 10 * time.Second
	defaultBuffer   = 16

	// maxChunk bounds one cycle's read. Larger growth is read from its tail.
	maxChunk = 4 << 20
)

// Options configure a watch session.
type Options struct {
	Path             string
	Interval         time.Duration // zero uses DefaultInterval
	Buffer           int           // event channel capacity; zero uses 16
	FailureThreshold int           // consecutive failed cycles before health is "failed"
	Classifier       *Classifier   // nil uses DefaultClassifier
	Logger           *slog.Logger

	// OnHealth is called from the poll loop whenever the health status
	// changes. It must not block.
	OnHealth func(HealthSnapshot)
}

// Stats summarises a watcher's activity.
type Stats struct {
	Polls      int64          `json:"polls"`
	Emitted    int64          `json:"emitted"`
	Suppressed int64          `json:"suppressed"`
	Dropped    int64          `json:"dropped"`
	Offset     int64          `json:"offset"`
	Health     HealthSnapshot `json:"health"`
}

// Watcher is one watch session over a single log file. It owns its offset
// and deduplication state; nothing is shared between sessions. A Watcher
// cannot be restarted: call Start again for a new session.
type Watcher struct {
	path       string
	interval   time.Duration
	classifier *Classifier
	logger     *slog.Logger
	onHealth   func(HealthSnapshot)

	// touched only by the poll goroutine
	tracker *Tracker
	dedup   Deduplicator
	partial []byte // bytes after the last newline, held for the next cycle
	maxRead int64

	health *health
	events chan queue.Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex // protects stats
	stats Stats
}

// Start opens the log once to capture its current length, then polls it on
// a fixed interval until Stop is called, ctx is cancelled, or a terminal
// event has been queued.
func Start(ctx context.Context, opts Options) (*Watcher, error) {
	w, err := newWatcher(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(ctx)
	return w, nil
}

func newWatcher(opts Options) (*Watcher, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("log path is empty")
	}
	size, err := fileSize(opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLogNotFound, opts.Path)
		}
		return nil, fmt.Errorf("open log: %w", err)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		path:       opts.Path,
		interval:   interval,
		classifier: classifier,
		logger:     logger.With("path", opts.Path),
		onHealth:   opts.OnHealth,
		tracker:    NewTracker(size),
		maxRead:    maxChunk,
		health:     newHealth(opts.FailureThreshold),
		events:     make(chan queue.Event, buffer),
		cancel:     func() {},
		done:       make(chan struct{}),
	}
	w.stats.Offset = size
	return w, nil
}

// Events delivers admitted events. It is closed when the session ends.
func (w *Watcher) Events() <-chan queue.Event {
	return w.events
}

// Done is closed once the poll loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Stop ends polling and waits for an in-flight cycle to finish. Safe to call
// more than once and after the session ended on its own.
func (w *Watcher) Stop() {
	w.once.Do(w.cancel)
	<-w.done
}

// Stats returns a snapshot of the session counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	s := w.stats
	w.mu.Unlock()
	s.Health = w.health.snapshot()
	return s
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watch session started", "offset", w.tracker.Offset(), "interval", w.interval)

	for {
		if w.poll(ctx) {
			w.logger.Info("watch session ended by terminal event")
			return
		}
		select {
		case <-ctx.Done():
			w.logger.Info("watch session stopped")
			return
		case <-ticker.C:
		}
	}
}

// poll runs one cycle and reports whether the session reached a terminal
// state.
func (w *Watcher) poll(ctx context.Context) bool {
	ev, ok, err := w.cycle()

	w.mu.Lock()
	w.stats.Polls++
	w.stats.Offset = w.tracker.Offset()
	w.mu.Unlock()

	if err != nil {
		w.health.recordFailure(err)
		w.logger.Warn("poll cycle failed", "error", err)
	} else {
		w.health.recordSuccess()
	}
	if snap, changed := w.health.snapshotAndEmit(); changed && w.onHealth != nil {
		w.onHealth(snap)
	}

	if !ok {
		return false
	}
	// Stopped while the cycle was running: the result is not delivered.
	if ctx.Err() != nil {
		return true
	}
	w.enqueue(ev)
	return ev.State.IsTerminal()
}

// cycle reads the bytes appended since the last poll, classifies them and
// passes the result through the deduplicator.
func (w *Watcher) cycle() (queue.Event, bool, error) {
	text, ok, err := w.readNew()
	if err != nil || !ok {
		return queue.Event{}, false, err
	}

	ev, ok := w.classifier.Classify(text)
	if !ok {
		return queue.Event{}, false, nil
	}
	admitted, ok := w.dedup.Admit(ev)
	if !ok {
		w.mu.Lock()
		w.stats.Suppressed++
		w.mu.Unlock()
		w.logger.Debug("queue position unchanged", "value", ev.Value)
		return queue.Event{}, false, nil
	}
	ev = admitted
	ev.ObservedAt = time.Now()
	w.logger.Info("queue event", "state", ev.State.String(), "value", ev.Value)
	return ev, true, nil
}

// readNew opens the log for this cycle only; the client may rewrite it
// between polls. os.Open shares read and write access on Windows so the
// client keeps appending.
func (w *Watcher) readNew() (string, bool, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return "", false, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", false, fmt.Errorf("stat log: %w", err)
	}

	prev := w.tracker.Offset()
	r, ok := w.tracker.Advance(info.Size())
	if !ok {
		if info.Size() < prev {
			w.logger.Info("log truncated, resetting offset", "from", prev, "to", info.Size())
			w.partial = nil
		}
		return "", false, nil
	}

	start := r.Start
	if r.Len() > w.maxRead {
		start = r.End - w.maxRead
	}

	buf := make([]byte, r.End-start)
	n, err := f.ReadAt(buf, start)
	if err != nil {
		w.tracker.rewind(r)
		if errors.Is(err, io.EOF) {
			return "", false, fmt.Errorf("log shrank during read: got %d of %d bytes", n, len(buf))
		}
		return "", false, fmt.Errorf("read log: %w", err)
	}
	if start > r.Start {
		w.logger.Warn("log grew past read limit, skipping to tail", "skipped", start-r.Start)
		w.partial = nil
	}

	complete := w.completeLines(buf)
	if len(complete) == 0 {
		return "", false, nil
	}
	return strings.ToValidUTF8(string(complete), "\uFFFD"), true, nil
}

// completeLines joins the held fragment with buf and returns everything up
// to the last newline. The rest is held until a later cycle ends the line.
func (w *Watcher) completeLines(buf []byte) []byte {
	data := append(w.partial, buf...)
	i := bytes.LastIndexByte(data, '\n')
	if i < 0 {
		if int64(len(data)) > w.maxRead {
			data = data[int64(len(data))-w.maxRead:]
		}
		w.partial = data
		return nil
	}
	w.partial = append([]byte(nil), data[i+1:]...)
	return data[:i+1]
}

// enqueue never blocks the poll loop. When subscribers fall behind the
// oldest undelivered event is discarded in favour of the newest.
func (w *Watcher) enqueue(ev queue.Event) {
	for {
		select {
		case w.events <- ev:
			w.mu.Lock()
			w.stats.Emitted++
			w.mu.Unlock()
			return
		default:
		}
		select {
		case old := <-w.events:
			w.mu.Lock()
			w.stats.Dropped++
			w.mu.Unlock()
			w.logger.Warn("event buffer full, dropping oldest", "state", old.State.String(), "value", old.Value)
		default:
		}
	}
}

func fileSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}
