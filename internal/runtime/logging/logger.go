// Package logging is the structured logging contract shared by the RPC
// session, the viewsets and the Watermill router, plus adapters from slog,
// Watermill and entry-style loggers.
package logging

import (
	"log/slog"
	"maps"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields holds structured key/value pairs attached to a log line.
type LogFields map[string]any

// With returns a copy of f extended with other. Keys in other win.
func (f LogFields) With(other LogFields) LogFields {
	if len(other) == 0 {
		return f
	}
	out := make(LogFields, len(f)+len(other))
	maps.Copy(out, f)
	maps.Copy(out, other)
	return out
}

func (f LogFields) watermill() watermill.LogFields {
	if len(f) == 0 {
		return nil
	}
	return watermill.LogFields(f)
}

// ServiceLogger is what every crudflow component logs through.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// NewSlogServiceLogger logs through log. Watermill's own levels pass through
// unchanged; Trace lands below slog.LevelDebug.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("crudflow: slog logger cannot be nil")
	}
	levels := map[slog.Level]slog.Level{}
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		levels[l] = l
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, levels))
}

// NewNopLogger discards everything.
func NewNopLogger() ServiceLogger {
	return NewWatermillServiceLogger(watermill.NopLogger{})
}

// Component tags log with the component name. A nil log yields a nop logger.
func Component(log ServiceLogger, name string) ServiceLogger {
	if log == nil {
		log = NewNopLogger()
	}
	return log.With(LogFields{"component": name})
}
