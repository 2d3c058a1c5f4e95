// Package logger configures the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a text-handler logger writing to stderr at the given level.
// Components receive the logger explicitly so tests can swap in a discard
// handler.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Setup creates a logger from a level name and installs it as the slog
// default. Unknown names fall back to info.
func Setup(level string) *slog.Logger {
	l := New(ParseLevel(level))
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a level name to an slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
