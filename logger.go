package cloudforge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with engine-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithModel adds a model field to the logger.
func (l *Logger) WithModel(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("model", name),
	}
}

// LogIngest logs the outcome of ingesting one image.
func (l *Logger) LogIngest(ctx context.Context, id string, succeeded, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "ingest completed with failures",
			"id", id,
			"success", succeeded,
			"failed", failed,
		)
	} else {
		l.InfoContext(ctx, "ingest completed",
			"id", id,
			"models", succeeded,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, model string, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"model", model,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"model", model,
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogModelLoad logs a model cache construction.
func (l *Logger) LogModelLoad(name string, took time.Duration, err error) {
	if err != nil {
		l.Error("model load failed",
			"model", name,
			"duration", took,
			"error", err,
		)
	} else {
		l.Info("model loaded",
			"model", name,
			"duration", took,
		)
	}
}

// LogModelUnload logs an explicit unload.
func (l *Logger) LogModelUnload(name string, err error) {
	if err != nil {
		l.Error("model unload failed",
			"model", name,
			"error", err,
		)
	} else {
		l.Info("model unloaded",
			"model", name,
		)
	}
}

// LogEviction logs a model leaving the cache on its own.
func (l *Logger) LogEviction(name, reason string) {
	l.Info("model evicted",
		"model", name,
		"reason", reason,
	)
}

// LogForget logs removal of an identifier from every index.
func (l *Logger) LogForget(ctx context.Context, id string, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "forget failed",
			"id", id,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "forget completed",
			"id", id,
			"removed", removed,
		)
	}
}
