package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON slog.Logger tagged with the given service name. The
// LOG_LEVEL environment variable overrides the passed default level.
func New(service string, level slog.Level) *slog.Logger {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = ParseLevel(env, level)
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", service)
}

// ParseLevel maps a level name to its slog level, falling back when the
// name is unknown.
func ParseLevel(name string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
