// Package logging provides the structured diagnostic logger shared by all
// pagecov components. Coverage collection is best-effort instrumentation, so
// most failures end up here rather than in return values.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a structured logger scoped to one component.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger writing to stderr.
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerTo(os.Stderr, component, level)
}

// NewLoggerTo creates a JSON logger writing to w.
func NewLoggerTo(w io.Writer, component string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(w, opts)

	logger := slog.New(handler).With(
		slog.String("component", component),
	)

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything. Useful as a default when a
// caller passes nil.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithSession returns a logger with a collection-session field attached.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("session_id", sessionID),
		),
	}
}

// WithResource returns a logger with resource-identity fields attached.
func (l *Logger) WithResource(kind, id string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("resource_kind", kind),
			slog.String("resource_id", id),
		),
	}
}

// FetchFailed logs a swallowed source/text retrieval failure. These are
// expected during navigation and never abort collection.
func (l *Logger) FetchFailed(kind, id string, err error) {
	l.Debug("resource fetch failed",
		slog.String("resource_kind", kind),
		slog.String("resource_id", id),
		slog.String("error", err.Error()),
	)
}
