// Package logger builds the slog loggers used by the server and the TUI.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gfnviewer/queuewatch/internal/config"
)

// New creates the server logger. Text goes to console; when a log file is
// configured the same records are also written there as JSON.
// The returned cleanup closes the file.
func New(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	level := ParseLevel(cfg.Level)
	text := slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})

	if cfg.File == "" {
		return slog.New(text), func() {}, nil
	}

	file, err := openLogFile(cfg.File)
	if err != nil {
		return nil, nil, err
	}
	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})

	return slog.New(fanout{text, jsonHandler}), func() { file.Close() }, nil
}

// NewEmbedded creates a logger that never writes to the terminal, for use
// while a TUI owns the screen. Without a file, records are discarded.
func NewEmbedded(cfg config.LogConfig) (*slog.Logger, func(), error) {
	if cfg.File == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}

	file, err := openLogFile(cfg.File)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})
	return slog.New(handler), func() { file.Close() }, nil
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}
