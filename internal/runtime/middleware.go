package runtime

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	configpkg "github.com/drblury/crudflow/internal/runtime/config"
	idspkg "github.com/drblury/crudflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/crudflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/crudflow/internal/runtime/metadata"
)

var errMiddlewareUnbuilt = errors.New("router middleware has no Build func")

// RouterMiddleware is a named step of the bus RPC router chain. Build runs
// once per Service and may return a nil middleware to opt out, for example
// when the feature it serves is switched off in config.
type RouterMiddleware struct {
	Name  string
	Build func(*Service) (message.HandlerMiddleware, error)
}

func fixed(name string, mw message.HandlerMiddleware) RouterMiddleware {
	return RouterMiddleware{
		Name:  name,
		Build: func(*Service) (message.HandlerMiddleware, error) { return mw, nil },
	}
}

// RetryPolicy tunes redelivery of failed bus RPC calls. Zero fields take the
// defaults. Unprocessable messages are never retried.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 5
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 16 * time.Second
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

// DefaultMiddlewares is the router chain applied unless
// ServiceDependencies.DisableDefaultMiddlewares is set.
func DefaultMiddlewares(conf *configpkg.Config) []RouterMiddleware {
	var policy RetryPolicy
	if conf != nil {
		policy = RetryPolicy{
			MaxRetries:      conf.RetryMaxRetries,
			InitialInterval: conf.RetryInitialInterval,
			MaxInterval:     conf.RetryMaxInterval,
		}
	}
	return []RouterMiddleware{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RetryMiddleware(policy),
		PoisonQueueMiddleware(nil),
		RecovererMiddleware(),
	}
}

func CorrelationIDMiddleware() RouterMiddleware {
	return fixed("correlation_id", correlationIDMiddleware)
}

// LogMessagesMiddleware logs every inbound bus request at Debug. A nil logger
// means the service logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) RouterMiddleware {
	return RouterMiddleware{
		Name: "log_messages",
		Build: func(s *Service) (message.HandlerMiddleware, error) {
			if logger == nil {
				logger = s.Logger
			}
			if logger == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessagesMiddleware(logger), nil
		},
	}
}

func TracerMiddleware() RouterMiddleware {
	return fixed("tracer", tracerMiddleware)
}

// MetricsMiddleware attaches Watermill's Prometheus router metrics when
// metrics are enabled.
func MetricsMiddleware() RouterMiddleware {
	return RouterMiddleware{
		Name: "metrics",
		Build: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}
			builder := metrics.NewPrometheusMetricsBuilder(s.registerer, "crudflow", s.Conf.PubSubSystem)
			builder.AddPrometheusRouterMetrics(s.router)
			return builder.NewRouterMiddleware().Middleware, nil
		},
	}
}

func RetryMiddleware(policy RetryPolicy) RouterMiddleware {
	return fixed("retry", retryMiddleware(policy.normalized()))
}

// PoisonQueueMiddleware forwards messages whose error matches filter to the
// poison_queue topic. It is skipped when no topic is configured; a nil filter
// selects unprocessable messages.
func PoisonQueueMiddleware(filter func(error) bool) RouterMiddleware {
	return RouterMiddleware{
		Name: "poison_queue",
		Build: func(s *Service) (message.HandlerMiddleware, error) {
			topic := s.Conf.PoisonQueue
			if topic == "" {
				return nil, nil
			}
			if s.publisher == nil {
				return nil, errors.New("poison queue middleware requires a publisher")
			}
			if filter == nil {
				filter = isUnprocessable
			}
			return middleware.PoisonQueueWithFilter(s.publisher, topic, filter)
		},
	}
}

// RecovererMiddleware turns procedure panics into handler errors.
func RecovererMiddleware() RouterMiddleware {
	return fixed("recoverer", middleware.Recoverer)
}

// RegisterMiddleware builds m and adds it to the bus RPC router.
func (s *Service) RegisterMiddleware(m RouterMiddleware) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}
	if m.Build == nil {
		return errMiddlewareUnbuilt
	}
	mw, err := m.Build(s)
	if err != nil {
		return err
	}
	if mw != nil {
		s.router.AddMiddleware(mw)
	}
	return nil
}

func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		metadatapkg.EnsureCorrelationID(msg.Metadata, idspkg.CreateULID)
		return h(msg)
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Bus request received", loggingpkg.LogFields{
				"message_uuid":   msg.UUID,
				"procedure":      msg.Metadata.Get(metadatapkg.KeyProcedure),
				"correlation_id": msg.Metadata.Get(metadatapkg.KeyCorrelationID),
				"payload_bytes":  len(msg.Payload),
			})
			return h(msg)
		}
	}
}

func retryMiddleware(p RetryPolicy) message.HandlerMiddleware {
	return middleware.Retry{
		MaxRetries:      p.MaxRetries,
		InitialInterval: p.InitialInterval,
		MaxInterval:     p.MaxInterval,
		ShouldRetry: func(params middleware.RetryParams) bool {
			return !isUnprocessable(params.Err)
		},
	}.Middleware
}

func tracerMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		procedure := msg.Metadata.Get(metadatapkg.KeyProcedure)
		ctx, span := otel.Tracer(tracerName).Start(msg.Context(), "bus."+procedure)
		defer span.End()
		span.SetAttributes(
			attribute.String("messaging.message.id", msg.UUID),
			attribute.String("crudflow.procedure", procedure),
			attribute.String("crudflow.correlation_id", msg.Metadata.Get(metadatapkg.KeyCorrelationID)),
		)
		msg.SetContext(ctx)

		out, err := h(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}
