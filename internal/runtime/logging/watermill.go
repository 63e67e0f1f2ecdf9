package logging

import "github.com/ThreeDotsLabs/watermill"

// NewWatermillServiceLogger logs through a Watermill LoggerAdapter.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("crudflow: watermill logger cannot be nil")
	}
	return watermillLogger{logger}
}

// NewWatermillAdapter goes the other way, so routers, publishers and
// subscribers share the service's sink.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("crudflow: ServiceLogger cannot be nil")
	}
	if wl, ok := log.(watermillLogger); ok {
		return wl.adapter
	}
	return routerLogger{log}
}

type watermillLogger struct {
	adapter watermill.LoggerAdapter
}

func (l watermillLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return l
	}
	return watermillLogger{l.adapter.With(fields.watermill())}
}

func (l watermillLogger) Debug(msg string, fields LogFields) { l.adapter.Debug(msg, fields.watermill()) }
func (l watermillLogger) Info(msg string, fields LogFields)  { l.adapter.Info(msg, fields.watermill()) }
func (l watermillLogger) Trace(msg string, fields LogFields) { l.adapter.Trace(msg, fields.watermill()) }

func (l watermillLogger) Error(msg string, err error, fields LogFields) {
	l.adapter.Error(msg, err, fields.watermill())
}

type routerLogger struct {
	log ServiceLogger
}

func (r routerLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return routerLogger{r.log.With(LogFields(fields))}
}

func (r routerLogger) Debug(msg string, fields watermill.LogFields) { r.log.Debug(msg, LogFields(fields)) }
func (r routerLogger) Info(msg string, fields watermill.LogFields)  { r.log.Info(msg, LogFields(fields)) }
func (r routerLogger) Trace(msg string, fields watermill.LogFields) { r.log.Trace(msg, LogFields(fields)) }

func (r routerLogger) Error(msg string, err error, fields watermill.LogFields) {
	r.log.Error(msg, err, LogFields(fields))
}
