package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/rpc"
	"github.com/drblury/crudflow/transport"
	_ "github.com/drblury/crudflow/transport/channel"
	_ "github.com/drblury/crudflow/transport/io"
)

func TestNewServiceRequiresConfigAndLogger(t *testing.T) {
	_, err := NewService(context.Background(), nil, newTestLogger(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = NewService(context.Background(), newTestConfig(), nil, ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestNewServiceUsesRegisteredTransport(t *testing.T) {
	svc, err := NewService(context.Background(), newTestConfig(), newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	assert.NotNil(t, svc.publisher)
	assert.NotNil(t, svc.subscriber)
	assert.NotNil(t, svc.Registry())
}

func TestNewServiceRejectsBusRPCOnPublishOnlyTransport(t *testing.T) {
	cfg := newTestConfig()
	cfg.PubSubSystem = "io"
	cfg.IOFile = filepath.Join(t.TempDir(), "events.log")
	cfg.BusRPCEnabled = true
	_, err := NewService(context.Background(), cfg, newTestLogger(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrBusRPCUnsupported)
}

func TestNewServiceTransportFailure(t *testing.T) {
	boom := errors.New("broker unreachable")
	_, err := NewService(context.Background(), newTestConfig(), newTestLogger(), ServiceDependencies{
		TransportBuilder: func(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
			return transport.Transport{}, boom
		},
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewServiceMiddlewareFailureClosesTransport(t *testing.T) {
	boom := errors.New("bad middleware")
	cfg := newTestConfig()
	recorder := newRecordingTransport()
	_, err := NewService(context.Background(), cfg, newTestLogger(), ServiceDependencies{
		TransportBuilder: recorder.build,
		Middlewares: []RouterMiddleware{{
			Name:  "broken",
			Build: func(*Service) (message.HandlerMiddleware, error) { return nil, boom },
		}},
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
	assert.True(t, recorder.pub.Closed)
}

func TestRegisterServesProcedureOverJSONRPC(t *testing.T) {
	svc, _ := newTestService(t, newTestConfig(), ServiceDependencies{})
	require.NoError(t, svc.Register(context.Background(), "app.echo", func(_ context.Context, call rpc.Call) (any, error) {
		return call.Kwarg("value"), nil
	}))

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"app.echo","params":{"value":"hi"}}`))
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"hi"}`, rec.Body.String())

	procs := svc.Procedures()
	require.Len(t, procs, 1)
	assert.Equal(t, "app.echo", procs[0].Name)
	assert.Empty(t, procs[0].BusTopic)
	assert.Equal(t, uint64(1), procs[0].Stats.Snapshot().CallsTotal)
}

func TestRegisterRejectsInvalidProcedures(t *testing.T) {
	svc, _ := newTestService(t, newTestConfig(), ServiceDependencies{})
	noop := func(context.Context, rpc.Call) (any, error) { return nil, nil }

	require.NoError(t, svc.Register(context.Background(), "app.one", noop))
	assert.ErrorIs(t, svc.Register(context.Background(), "app.one", noop), errspkg.ErrProcedureExists)
	assert.ErrorIs(t, svc.Register(context.Background(), "app.two", nil), errspkg.ErrProcedureRequired)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Register(ctx, "app.three", noop), context.Canceled)
	assert.Len(t, svc.Procedures(), 1)
}

func TestRegisterOnNilService(t *testing.T) {
	var svc *Service
	assert.ErrorIs(t, svc.Register(context.Background(), "app.x", nil), errspkg.ErrSessionRequired)
}

func TestWrappedProcedureRecordsStatsHooksAndMetrics(t *testing.T) {
	cfg := newTestConfig()
	cfg.MetricsEnabled = true

	var (
		mu     sync.Mutex
		events []string
	)
	hooks := CallHooks{
		OnCallStart: func(ctx CallContext) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "start:"+ctx.Procedure+":"+ctx.Transport)
		},
		OnCallDone: func(ctx CallContext) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "done:"+ctx.RequestID)
		},
		OnCallError: func(ctx CallContext, err error) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "error:"+err.Error())
		},
	}
	svc, _ := newTestService(t, cfg, ServiceDependencies{Hooks: hooks})

	boom := errors.New("store down")
	fail := true
	require.NoError(t, svc.Register(context.Background(), "app.flaky", func(context.Context, rpc.Call) (any, error) {
		if fail {
			return nil, boom
		}
		return "ok", nil
	}))

	ctx := rpc.WithRequestID(context.Background(), "req-1")
	_, err := svc.Registry().Invoke(ctx, "app.flaky", rpc.Call{})
	require.ErrorIs(t, err, boom)
	fail = false
	_, err = svc.Registry().Invoke(ctx, "app.flaky", rpc.Call{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:app.flaky:http", "error:store down",
		"start:app.flaky:http", "done:req-1",
	}, events)

	stats := svc.Procedures()[0].Stats.Snapshot()
	assert.Equal(t, uint64(2), stats.CallsTotal)
	assert.Equal(t, uint64(1), stats.CallsFailed)
	assert.Equal(t, uint64(1), stats.Errors.Other)
	assert.Equal(t, "store down", stats.Errors.LastError)
	assert.Zero(t, stats.InFlight)

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.callsTotal.WithLabelValues("app.flaky", TransportHTTP, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.callsTotal.WithLabelValues("app.flaky", TransportHTTP, "other")))
	assert.Equal(t, 0.0, testutil.ToFloat64(svc.metrics.inFlight.WithLabelValues("app.flaky")))
}

func TestStartServesUntilCancelled(t *testing.T) {
	cfg := newTestConfig()
	cfg.WebUIEnabled = true
	cfg.MetricsEnabled = true
	cfg.BusRPCEnabled = true
	svc, _ := newTestService(t, cfg, ServiceDependencies{})

	origServe, origRun := serveHTTP, routerRun
	t.Cleanup(func() { serveHTTP, routerRun = origServe, origRun })

	var (
		mu    sync.Mutex
		addrs []string
	)
	serveHTTP = func(ctx context.Context, addr string, _ http.Handler) error {
		mu.Lock()
		addrs = append(addrs, addr)
		mu.Unlock()
		<-ctx.Done()
		return nil
	}
	routerStarted := make(chan struct{})
	routerRun = func(_ *message.Router, ctx context.Context) error {
		close(routerStarted)
		<-ctx.Done()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	<-routerStarted
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []string{":8080", ":8081", ":9090"}, addrs)
}

func TestStartReturnsServerFailure(t *testing.T) {
	svc, _ := newTestService(t, newTestConfig(), ServiceDependencies{})
	origServe := serveHTTP
	t.Cleanup(func() { serveHTTP = origServe })

	boom := errors.New("address in use")
	serveHTTP = func(context.Context, string, http.Handler) error { return boom }

	assert.ErrorIs(t, svc.Start(context.Background()), boom)
}

func TestCloseClosesTransport(t *testing.T) {
	recorder := newRecordingTransport()
	svc, _ := newTestService(t, newTestConfig(), ServiceDependencies{TransportBuilder: recorder.build})
	require.NoError(t, svc.Close())
	assert.True(t, recorder.pub.Closed)
	assert.True(t, recorder.sub.Closed)
}

func TestCloseDoesNotWaitForIdleBusHandlers(t *testing.T) {
	cfg := newTestConfig()
	cfg.BusRPCEnabled = true
	recorder := newRecordingTransport()
	svc, _ := newTestService(t, cfg, ServiceDependencies{TransportBuilder: recorder.build})
	require.NoError(t, svc.Register(context.Background(), "app.listitems", func(context.Context, rpc.Call) (any, error) {
		return []any{}, nil
	}))

	started := time.Now()
	require.NoError(t, svc.Close())
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.True(t, recorder.pub.Closed)
}

func TestCloseWithoutRouter(t *testing.T) {
	recorder := newRecordingTransport()
	svc, _ := newTestService(t, newTestConfig(), ServiceDependencies{TransportBuilder: recorder.build})
	svc.router = nil
	assert.NotPanics(t, func() { _ = svc.Close() })
	assert.True(t, recorder.pub.Closed)
}
