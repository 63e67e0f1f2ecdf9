package runtime

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/internal/runtime/rpc"
)

const tracerName = "crudflow"

type callTransportKey struct{}

func withCallTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, callTransportKey{}, transport)
}

func callTransport(ctx context.Context) string {
	if t, ok := ctx.Value(callTransportKey{}).(string); ok {
		return t
	}
	return TransportHTTP
}

// Register exposes proc under name on the JSON-RPC endpoint and, with bus
// RPC enabled, on the Pub/Sub transport. Names are unique per Service.
func (s *Service) Register(ctx context.Context, name string, proc rpc.Procedure) error {
	if s == nil {
		return errspkg.ErrSessionRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if proc == nil {
		return fmt.Errorf("%s: %w", name, errspkg.ErrProcedureRequired)
	}

	stats := newProcedureStats(s.resourceTracker)
	if err := s.registry.Register(name, s.wrapProcedure(name, proc, stats)); err != nil {
		return err
	}

	info := &ProcedureInfo{Name: name, Stats: stats}
	if s.Conf.BusRPCEnabled {
		info.BusTopic = name
		s.addBusHandler(name)
	}

	s.proceduresMu.Lock()
	s.procedures = append(s.procedures, info)
	s.proceduresMu.Unlock()

	s.Logger.Debug("Registered procedure", loggingpkg.LogFields{
		"procedure": name,
		"bus_rpc":   s.Conf.BusRPCEnabled,
	})
	return nil
}

// Procedures lists registered procedures in registration order.
func (s *Service) Procedures() []*ProcedureInfo {
	s.proceduresMu.RLock()
	defer s.proceduresMu.RUnlock()
	out := make([]*ProcedureInfo, len(s.procedures))
	copy(out, s.procedures)
	return out
}

func (s *Service) wrapProcedure(name string, proc rpc.Procedure, stats *ProcedureStats) rpc.Procedure {
	return func(ctx context.Context, call rpc.Call) (any, error) {
		transport := callTransport(ctx)
		ctx, span := otel.Tracer(tracerName).Start(ctx, "rpc."+name)
		defer span.End()
		span.SetAttributes(
			attribute.String("rpc.procedure", name),
			attribute.String("rpc.transport", transport),
			attribute.String("rpc.request_id", rpc.RequestID(ctx)),
		)

		callCtx := CallContext{
			Procedure: name,
			Transport: transport,
			RequestID: rpc.RequestID(ctx),
			Context:   ctx,
			StartedAt: time.Now(),
		}
		s.hooks.start(callCtx)
		stats.onCallStart()
		s.metrics.callStarted(name)

		result, err := proc(ctx, call)

		callCtx.Duration = time.Since(callCtx.StartedAt)
		category := s.errorClassifier(err)
		stats.onCallFinish(time.Now(), callCtx.Duration, err, category)
		s.metrics.callFinished(name, transport, category, callCtx.Duration)
		s.hooks.finish(callCtx, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return result, err
	}
}
