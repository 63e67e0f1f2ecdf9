package logging

import (
	"maps"
	"reflect"
	"slices"
)

// EntryLoggerAdapter matches entry-style loggers such as logrus.Entry, whose
// chaining methods return their own concrete type.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

// NewEntryServiceLogger logs through an entry-style logger.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if isNil(entry) {
		panic("crudflow: entry logger cannot be nil")
	}
	return &entryLogger[T]{entry: entry}
}

type entryLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

// withFields chains WithField in key order so output is stable.
func (e *entryLogger[T]) withFields(fields LogFields) T {
	out := e.entry
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		out = out.WithField(k, fields[k])
	}
	return out
}

func (e *entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return &entryLogger[T]{entry: e.withFields(fields)}
}

func (e *entryLogger[T]) Debug(msg string, fields LogFields) { e.withFields(fields).Debug(msg) }
func (e *entryLogger[T]) Info(msg string, fields LogFields)  { e.withFields(fields).Info(msg) }
func (e *entryLogger[T]) Trace(msg string, fields LogFields) { e.withFields(fields).Trace(msg) }

func (e *entryLogger[T]) Error(msg string, err error, fields LogFields) {
	out := e.withFields(fields)
	if err != nil {
		out = out.WithError(err)
	}
	out.Error(msg)
}

// isNil also catches typed nil pointers, which compare unequal to a nil
// interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
