package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/crudflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/crudflow/internal/runtime/metadata"
)

// Call transports reported in CallContext.
const (
	TransportHTTP = "http"
	TransportBus  = "bus"
)

// CallContext describes one procedure invocation to hooks.
type CallContext struct {
	Procedure string
	// Transport is TransportHTTP or TransportBus.
	Transport string
	RequestID string
	Context   context.Context
	StartedAt time.Time
	// Duration is only set in OnCallDone and OnCallError.
	Duration time.Duration
}

// CallHooks defines callbacks around procedure calls. Nil hooks are skipped.
type CallHooks struct {
	OnCallStart func(ctx CallContext)
	OnCallDone  func(ctx CallContext)
	OnCallError func(ctx CallContext, err error)
}

// Merge combines two CallHooks. The hooks from other run after those of h.
func (h CallHooks) Merge(other CallHooks) CallHooks {
	return CallHooks{
		OnCallStart: chainHooks(h.OnCallStart, other.OnCallStart),
		OnCallDone:  chainHooks(h.OnCallDone, other.OnCallDone),
		OnCallError: chainErrorHooks(h.OnCallError, other.OnCallError),
	}
}

func chainHooks(a, b func(CallContext)) func(CallContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(CallContext, error)) func(CallContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h CallHooks) start(ctx CallContext) {
	if h.OnCallStart != nil {
		h.OnCallStart(ctx)
	}
}

func (h CallHooks) finish(ctx CallContext, err error) {
	if err != nil {
		if h.OnCallError != nil {
			h.OnCallError(ctx, err)
		}
		return
	}
	if h.OnCallDone != nil {
		h.OnCallDone(ctx)
	}
}

// CallHooksMiddleware runs hooks around every message the bus RPC router
// handles, including malformed ones that never reach a procedure.
func CallHooksMiddleware(hooks CallHooks) RouterMiddleware {
	return fixed("call_hooks", callHooksMiddleware(hooks))
}

func callHooksMiddleware(hooks CallHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			callCtx := CallContext{
				Procedure: msg.Metadata.Get(metadatapkg.KeyProcedure),
				Transport: TransportBus,
				RequestID: msg.Metadata.Get(metadatapkg.KeyCorrelationID),
				Context:   msg.Context(),
				StartedAt: time.Now(),
			}
			hooks.start(callCtx)
			msgs, err := h(msg)
			callCtx.Duration = time.Since(callCtx.StartedAt)
			hooks.finish(callCtx, err)
			return msgs, err
		}
	}
}

// LoggingHooks logs call lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) CallHooks {
	return CallHooks{
		OnCallStart: func(ctx CallContext) {
			logger.Debug("Procedure call started", loggingpkg.LogFields{
				"procedure":  ctx.Procedure,
				"transport":  ctx.Transport,
				"request_id": ctx.RequestID,
			})
		},
		OnCallDone: func(ctx CallContext) {
			logger.Debug("Procedure call completed", loggingpkg.LogFields{
				"procedure":   ctx.Procedure,
				"transport":   ctx.Transport,
				"request_id":  ctx.RequestID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnCallError: func(ctx CallContext, err error) {
			logger.Error("Procedure call failed", err, loggingpkg.LogFields{
				"procedure":   ctx.Procedure,
				"transport":   ctx.Transport,
				"request_id":  ctx.RequestID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// AlertingHooks calls alertFunc on every failed call.
func AlertingHooks(alertFunc func(ctx CallContext, err error)) CallHooks {
	return CallHooks{OnCallError: alertFunc}
}
