// Package obslog defines the logging collaborator the core depends on,
// with a default adapter backed by log/slog.
package obslog

import (
	"log/slog"
	"os"
)

// Logger is the structured logging interface the core subsystems consume.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// slogLogger adapts log/slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// NewSlog builds a Logger backed by a JSON slog.Logger writing to stderr,
// the same handler setup the teacher uses in its own main().
func NewSlog() Logger {
	h := slog.NewJSONHandler(os.Stderr, nil)
	return &slogLogger{l: slog.New(h)}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
