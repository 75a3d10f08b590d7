// Package dispatch runs watch sessions on behalf of the admin and fans their
// events out to subscribers.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
	"github.com/gfnviewer/queuewatch/internal/state"
)

var (
	ErrAlreadyTracking = errors.New("queue tracking already running")
	ErrNotTracking     = errors.New("queue tracking is not running")
)

// Sink receives everything subscribers should see. Implementations must not
// block: they are called with the controller lock held.
type Sink interface {
	QueueEvent(ev queue.Event, text string)
	TrackingChanged(st state.Status)
	HealthChanged(h logwatch.HealthSnapshot)
}

// ClientDetector reports whether the streaming client is running.
type ClientDetector interface {
	Running(ctx context.Context) (bool, error)
}

type Options struct {
	LogPath string
	// Watch is the template for each session. Path, Logger and OnHealth
	// are filled in per session.
	Watch    logwatch.Options
	Store    *state.Store
	Sink     Sink
	Detector ClientDetector
	Logger   *slog.Logger
}

type session struct {
	id      uint64
	actor   string
	watcher *logwatch.Watcher
}

type Controller struct {
	logPath  string
	watch    logwatch.Options
	store    *state.Store
	sink     Sink
	detector ClientDetector
	logger   *slog.Logger

	mu      sync.Mutex
	current *session
	nextID  uint64
	wg      sync.WaitGroup
}

func New(opts Options) *Controller {
	store := opts.Store
	if store == nil {
		store = state.NewStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	return &Controller{
		logPath:  opts.LogPath,
		watch:    opts.Watch,
		store:    store,
		sink:     sink,
		detector: opts.Detector,
		logger:   logger,
	}
}

func (c *Controller) Store() *state.Store { return c.store }

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Start begins a watch session for actor. The session outlives ctx; it ends
// on a terminal event, Stop, or Close.
func (c *Controller) Start(ctx context.Context, actor string) error {
	if c.detector != nil {
		running, err := c.detector.Running(ctx)
		switch {
		case err != nil:
			c.logger.Debug("client detection failed", "error", err)
		case !running:
			c.logger.Warn("streaming client not running, tracking anyway")
		}
		c.store.SetClientRunning(running)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return ErrAlreadyTracking
	}

	c.nextID++
	sess := &session{id: c.nextID, actor: actor}
	opts := c.watch
	opts.Path = c.logPath
	opts.Logger = c.logger.With("session", sess.id)
	opts.OnHealth = func(h logwatch.HealthSnapshot) { c.healthChanged(sess, h) }

	w, err := logwatch.Start(context.WithoutCancel(ctx), opts)
	if err != nil {
		return err
	}
	sess.watcher = w
	c.current = sess

	st := c.store.Started(c.logPath, actor, TextWaiting)
	c.sink.TrackingChanged(st)
	c.logger.Info("queue tracking started", "session", sess.id, "by", actor, "path", c.logPath)

	c.wg.Add(1)
	go c.consume(sess)
	return nil
}

// Stop ends the current session. No event of that session is delivered
// after Stop returns.
func (c *Controller) Stop(actor string) error {
	sess, err := c.detach("stopped by "+actor, TextAdminStopped)
	if err != nil {
		return err
	}
	sess.watcher.Stop()
	c.logger.Info("queue tracking stopped", "session", sess.id, "by", actor)
	return nil
}

// Close stops any running session and waits for its consumer to finish.
func (c *Controller) Close() {
	if sess, err := c.detach(state.ReasonShutdown, TextShutdown); err == nil {
		sess.watcher.Stop()
	}
	c.wg.Wait()
}

// WatchClient polls the detector every interval and publishes changes to
// the client running flag until ctx is done.
func (c *Controller) WatchClient(ctx context.Context, interval time.Duration) {
	if c.detector == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.checkClient(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) checkClient(ctx context.Context) {
	running, err := c.detector.Running(ctx)
	if err != nil {
		c.logger.Debug("client detection failed", "error", err)
		return
	}
	if !c.store.SetClientRunning(running) {
		return
	}
	c.logger.Info("streaming client state changed", "running", running)
	c.mu.Lock()
	c.sink.TrackingChanged(c.store.Snapshot())
	c.mu.Unlock()
}

// detach clears the current session under the lock. The watcher is stopped
// by the caller without the lock so an in-flight health callback can finish.
func (c *Controller) detach(reason, text string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.current
	if sess == nil {
		return nil, ErrNotTracking
	}
	c.current = nil
	if st, ok := c.store.Stopped(reason, text); ok {
		c.sink.TrackingChanged(st)
	}
	return sess, nil
}

func (c *Controller) consume(sess *session) {
	defer c.wg.Done()
	for ev := range sess.watcher.Events() {
		c.deliver(sess, ev)
	}
	sess.watcher.Stop()
	st := sess.watcher.Stats()
	c.logger.Debug("watch session summary", "session", sess.id, "polls", st.Polls, "emitted", st.Emitted,
		"suppressed", st.Suppressed, "dropped", st.Dropped, "offset", st.Offset)

	// The watcher ended without a terminal event reaching us.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == sess {
		c.current = nil
		if st, ok := c.store.Stopped(state.ReasonShutdown, TextShutdown); ok {
			c.sink.TrackingChanged(st)
		}
	}
}

func (c *Controller) deliver(sess *session, ev queue.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != sess {
		return
	}

	text := Text(ev)
	st := c.store.Observed(ev, text)
	c.sink.QueueEvent(ev, text)

	if ev.State.IsTerminal() {
		c.current = nil
		c.sink.TrackingChanged(st)
		c.logger.Info("queue tracking finished", "session", sess.id, "state", ev.State.String())
	}
}

func (c *Controller) healthChanged(sess *session, h logwatch.HealthSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != sess {
		return
	}
	c.store.SetHealth(h)
	c.sink.HealthChanged(h)
	if h.Status != logwatch.StatusHealthy {
		c.logger.Warn("log watch unhealthy", "session", sess.id, "status", h.Status, "failures", h.ConsecutiveFailures, "error", h.LastError)
	}
}

type nopSink struct{}

func (nopSink) QueueEvent(queue.Event, string) {}
func (nopSink) TrackingChanged(state.Status) {}
func (nopSink) HealthChanged(logwatch.HealthSnapshot) {}
