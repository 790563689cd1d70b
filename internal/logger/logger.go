// Package logger provides the logging abstraction used by the analysis
// engine, plus query sanitization for safe log and trace output.
package logger

import "log/slog"

// Logger is the structured logging interface the engine writes to.
// Arguments follow the log/slog convention of alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything. It is the default when no logger is
// configured, keeping the record path free of logging overhead.
type NoopLogger struct{}

func (*NoopLogger) Debug(string, ...any) {}
func (*NoopLogger) Info(string, ...any)  {}
func (*NoopLogger) Warn(string, ...any)  {}
func (*NoopLogger) Error(string, ...any) {}

// SlogAdapter implements Logger on top of a log/slog.Logger.
type SlogAdapter struct {
	log *slog.Logger
}

// NewSlogAdapter wraps an slog.Logger. A nil logger falls back to
// slog.Default so the adapter is always safe to call.
func NewSlogAdapter(log *slog.Logger) *SlogAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &SlogAdapter{log: log}
}

func (a *SlogAdapter) Debug(msg string, args ...any) { a.log.Debug(msg, args...) }
func (a *SlogAdapter) Info(msg string, args ...any)  { a.log.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.log.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.log.Error(msg, args...) }
