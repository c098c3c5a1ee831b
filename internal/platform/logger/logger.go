// Package logger provides structured logging functionality for the application
// using Go's standard library log/slog package.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// contextKey is a private type for context keys defined in this package.
type contextKey int

// loggerKey is the context key under which the request/job logger is stored.
const loggerKey contextKey = iota

// Setup initializes and configures the application's logging system.
// It creates a structured JSON logger with the configured log level and
// sets it as the default logger for the application.
func Setup(logLevel string) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		// An invalid level falls back to info with a warning rather
		// than refusing to start.
		level = slog.LevelInfo

		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", logLevel,
			"default_level", "info")
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)

	// Set this logger as the default so the slog package functions
	// (slog.Info, slog.Error, etc.) use it as well.
	slog.SetDefault(logger)

	return logger, nil
}

// WithLogger returns a new context carrying the given logger.
// Request middleware and job dispatch loops use this to propagate a
// logger enriched with correlation attributes (trace id, task id).
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger stored in the context, falling back
// to slog.Default() when none is present.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// FromContextOrDefault retrieves the logger stored in the context,
// falling back to the provided default when none is present.
func FromContextOrDefault(ctx context.Context, def *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return def
}
