package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gfnviewer/queuewatch/internal/auth"
	"github.com/gfnviewer/queuewatch/internal/config"
	"github.com/gfnviewer/queuewatch/internal/dispatch"
	"github.com/gfnviewer/queuewatch/internal/logger"
	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/mock"
	"github.com/gfnviewer/queuewatch/internal/process"
	"github.com/gfnviewer/queuewatch/internal/queue"
	"github.com/gfnviewer/queuewatch/internal/state"
	"github.com/gfnviewer/queuewatch/internal/ws"
)

const (
	shutdownTimeout = 5 * time.Second
	maxWSClients    = 64
	mockInterval    = time.Second
)

// ServeOptions holds command-line options for the serve command.
type ServeOptions struct {
	Port      int
	Mock      bool
	Autostart bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(configPath *string) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue tracking server",
		Long: `Start the HTTP and WebSocket server. Tracking begins when the admin
calls POST /api/watch, or immediately with --autostart.

With --mock the server tracks a synthetic log in a temporary directory
that counts a queue down and then enters the game.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "Override server port")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "Track a synthetic client log")
	cmd.Flags().BoolVar(&opts.Autostart, "autostart", false, "Start tracking as soon as the server is up")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, opts *ServeOptions) error {
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Mock {
		cfg.Watch.PollInterval = mockInterval
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()
	slog.SetDefault(log)

	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}

	logPath, err := cfg.LogPath()
	if opts.Mock {
		logPath, err = prepareMockLog()
	}
	if err != nil {
		return err
	}

	authn := auth.New(cfg.Auth)
	if !authn.Enabled() {
		log.Warn("auth.secret is empty, every client is treated as admin")
	}

	store := state.NewStore()
	broadcaster := ws.NewBroadcaster(store, maxWSClients, log.With("component", "ws"))
	controller := dispatch.New(dispatch.Options{
		LogPath: logPath,
		Watch: logwatch.Options{
			Interval:         cfg.Watch.PollInterval,
			Buffer:           cfg.Watch.EventBuffer,
			FailureThreshold: cfg.Watch.FailureThreshold,
			Classifier:       classifier,
		},
		Store:    store,
		Sink:     broadcaster,
		Detector: process.NewDetector(cfg.Watch.ProcessNames),
		Logger:   log.With("component", "dispatch"),
	})

	server := ws.NewServer(controller, store, broadcaster, authn, cfg.Server.AllowedOrigins, log.With("component", "http"))
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go controller.WatchClient(ctx, cfg.Watch.PollInterval)

	if opts.Autostart || opts.Mock {
		if err := controller.Start(ctx, "autostart"); err != nil {
			return fmt.Errorf("start tracking: %w", err)
		}
	}
	if opts.Mock {
		gen := &mock.Generator{
			Path:       logPath,
			Start:      12,
			Repeat:     2,
			Outcome:    queue.Passed,
			TruncateAt: 6,
			Interval:   mockInterval,
			Logger:     log.With("component", "mock"),
		}
		go func() {
			if err := gen.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("mock generator failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", addr, "log", logPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		controller.Close()
		broadcaster.Close()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	controller.Close()
	broadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func prepareMockLog() (string, error) {
	dir, err := os.MkdirTemp("", "queuewatch-mock-")
	if err != nil {
		return "", fmt.Errorf("create mock dir: %w", err)
	}
	path := filepath.Join(dir, "debug.log")
	if err := os.WriteFile(path, []byte("mock client started\n"), 0644); err != nil {
		return "", fmt.Errorf("create mock log: %w", err)
	}
	return path, nil
}
