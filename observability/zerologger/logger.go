// Package zerologger adapts github.com/rs/zerolog to the core.Logger
// interface, so pool and scheduler logs flow into an application's existing
// zerolog pipeline.
package zerologger

import (
	"github.com/rs/zerolog"

	"github.com/kaidokert/taskpool/core"
)

// Logger implements core.Logger on top of a zerolog.Logger.
type Logger struct {
	logger zerolog.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps the given zerolog.Logger.
func New(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Debug logs a debug message with optional fields.
func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.emit(l.logger.Debug(), msg, fields)
}

// Info logs an info message with optional fields.
func (l *Logger) Info(msg string, fields ...core.Field) {
	l.emit(l.logger.Info(), msg, fields)
}

// Warn logs a warning message with optional fields.
func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.emit(l.logger.Warn(), msg, fields)
}

// Error logs an error message with optional fields.
func (l *Logger) Error(msg string, fields ...core.Field) {
	l.emit(l.logger.Error(), msg, fields)
}

func (l *Logger) emit(event *zerolog.Event, msg string, fields []core.Field) {
	for _, f := range fields {
		event = event.Interface(f.Key, f.Value)
	}
	event.Msg(msg)
}
