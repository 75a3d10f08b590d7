// Package mock writes a synthetic streaming-client log so the server and
// TUI can be exercised without a real client in a queue.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
)

var noiseLines = []string{
	"[%s 5660/ 6032:INFO:nvstreamer.cpp(88)] Heartbeat ok\n",
	"[%s 5660/ 6040:WARN:network_probe.cpp(301)] RTT spike detected\n",
	"[%s 5660/ 6032:INFO:session_manager.cpp(512)] Polling session state\n",
}

// Step is one write to the mock log.
type Step struct {
	Line     string
	Truncate bool // truncate the file before writing Line
}

type Generator struct {
	Path       string
	Start      int           // first queue position
	Repeat     int           // times each position is written; <1 means 1
	Outcome    queue.State   // terminal state written after position 1
	TruncateAt int           // truncate the file when the queue reaches this position; 0 disables
	Interval   time.Duration // delay between steps
	Logger     *slog.Logger

	now func() time.Time
}

// Script returns every write the generator performs, in order.
func (g *Generator) Script() []Step {
	repeat := g.Repeat
	if repeat < 1 {
		repeat = 1
	}
	now := g.now
	if now == nil {
		now = time.Now
	}
	stamp := func() string { return now().Format("2006-01-02 15:04:05.000") }

	var steps []Step
	for pos := g.Start; pos >= 1; pos-- {
		for i := 0; i < repeat; i++ {
			steps = append(steps, Step{
				Line:     StatusLine(stamp(), pos),
				Truncate: i == 0 && pos == g.TruncateAt,
			})
			noise := noiseLines[(pos+i)%len(noiseLines)]
			steps = append(steps, Step{Line: fmt.Sprintf(noise, stamp())})
		}
	}
	if marker := outcomeMarker(g.Outcome); marker != "" {
		steps = append(steps, Step{
			Line: fmt.Sprintf("[%s 5660/ 6032:INFO:ipc_client.cpp(77)] %s\n", stamp(), marker),
		})
	}
	return steps
}

// Run performs the script, one step per Interval, until it is done or ctx
// is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := g.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, step := range g.Script() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := g.apply(step); err != nil {
			return err
		}
		if step.Truncate {
			logger.Info("mock log truncated", "path", g.Path)
		}
	}
	logger.Info("mock script finished", "outcome", g.Outcome.String())
	return nil
}

func (g *Generator) apply(step Step) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if step.Truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(g.Path, flags, 0644)
	if err != nil {
		return fmt.Errorf("open mock log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(step.Line); err != nil {
		return fmt.Errorf("write mock log: %w", err)
	}
	return nil
}

// StatusLine formats a queue status line the way the streaming client
// writes it.
func StatusLine(stamp string, position int) string {
	return fmt.Sprintf("[%s 5660/ 6032:INFO:streamer_queue.cpp(214)] Queue update (state: InQueue, queue: %d, eta: %d)\n",
		stamp, position, position*15)
}

func outcomeMarker(s queue.State) string {
	switch s {
	case queue.Passed:
		return logwatch.MarkerPassed
	case queue.Stopped:
		return logwatch.MarkerStopped
	case queue.Failed:
		return logwatch.MarkerFailed
	}
	return ""
}
