// Package logging defines the bot-wide Logger interface and its slog-backed
// implementation, grounded on internal/agent/ports/agent/runtime.go's
// Logger shape from the teacher repo.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger is the narrow logging surface every other package depends on,
// rather than importing log/slog directly, so call sites stay testable
// with a stub.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	// With returns a derived Logger that annotates every record with the
	// given key/value pairs, e.g. logger.With("task", name).
	With(args ...interface{}) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New builds a Logger writing text-formatted records to w at minLevel.
func New(w io.Writer, minLevel slog.Level) Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel})
	return &slogLogger{l: slog.New(h)}
}

// NewStderr builds a Logger at the given level writing to os.Stderr, the
// default sink for cmd/plbot.
func NewStderr(minLevel slog.Level) Logger {
	return New(os.Stderr, minLevel)
}

func (s *slogLogger) Debug(format string, args ...interface{}) {
	s.l.Log(context.Background(), slog.LevelDebug, sprintf(format, args...))
}

func (s *slogLogger) Info(format string, args ...interface{}) {
	s.l.Log(context.Background(), slog.LevelInfo, sprintf(format, args...))
}

func (s *slogLogger) Warn(format string, args ...interface{}) {
	s.l.Log(context.Background(), slog.LevelWarn, sprintf(format, args...))
}

func (s *slogLogger) Error(format string, args ...interface{}) {
	s.l.Log(context.Background(), slog.LevelError, sprintf(format, args...))
}

func (s *slogLogger) With(args ...interface{}) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
