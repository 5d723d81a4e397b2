package types

import "time"

// Logger is the minimal structured logging interface used across the
// application. Satisfied by the slog adapter in cmd packages.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock with the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// NopLogger discards all log output. Useful in tests.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}
func (n NopLogger) With(...any) Logger { return n }
