// Package mlog is a thin structured-logging setup on top of log/slog,
// the logging idiom used throughout the teacher repo (app/lifecycle's
// package-level slog.Info/slog.Debug calls, with no custom handler
// wiring of its own). This package adds the one piece that repo leaves
// implicit — a Setup that installs a level-configurable handler as the
// process default — so every package in this module (engine, sessions,
// transports, cmd/ harnesses) can keep calling slog.Default() or take a
// *slog.Logger parameter without each needing its own bootstrap.
package mlog

import (
	"log/slog"
	"os"
)

// Setup installs a text-handler slog.Logger as the process default at
// the given minimum level and returns it for callers that want to pass
// it explicitly instead of relying on slog.Default().
func Setup(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps the RFC 5424-ish names MCP's logging/setLevel uses to
// a slog.Level, defaulting to Info for anything unrecognized.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "notice", "info":
		return slog.LevelInfo
	case "warning":
		return slog.LevelWarn
	case "error", "critical", "alert", "emergency":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
