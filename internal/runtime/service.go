package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/crudflow/internal/runtime/cloudevents"
	configpkg "github.com/drblury/crudflow/internal/runtime/config"
	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/internal/runtime/rpc"
	"github.com/drblury/crudflow/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

var serveHTTP = rpc.Serve

// ServiceDependencies holds the optional collaborators of a Service. Leave
// fields nil to get the defaults.
type ServiceDependencies struct {
	// Registry receives the wrapped procedures. A fresh one is created when nil.
	Registry *rpc.Registry
	// TransportBuilder overrides the registry lookup by pubsub_system.
	TransportBuilder transport.Builder
	// Middlewares are appended after the default bus RPC middleware chain.
	Middlewares               []RouterMiddleware
	DisableDefaultMiddlewares bool
	Hooks                     CallHooks
	ErrorClassifier           ErrorClassifier
	// Registerer and Gatherer back the Prometheus metrics. They default to
	// the global registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Service is the RPC session viewsets register against. It owns the
// procedure registry, the JSON-RPC endpoint, the Pub/Sub publisher used for
// change events and, when bus RPC is enabled, a Watermill router serving the
// same procedures over the transport.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport  transport.Transport
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	encoding   cloudevents.Encoding

	registry  *rpc.Registry
	rpcServer *rpc.Server

	hooks           CallHooks
	errorClassifier ErrorClassifier
	metrics         *procedureMetrics
	registerer      prometheus.Registerer
	gatherer        prometheus.Gatherer
	resourceTracker *resourceTracker

	procedures   []*ProcedureInfo
	proceduresMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService builds the transport, router and RPC server for conf. Register
// procedures before calling Start.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating crudflow service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		encoding:        cloudevents.Encoding(conf.EventEncoding),
		registry:        deps.Registry,
		hooks:           deps.Hooks,
		errorClassifier: deps.ErrorClassifier,
		registerer:      deps.Registerer,
		gatherer:        deps.Gatherer,
		resourceTracker: newResourceTracker(),
	}
	if s.registry == nil {
		s.registry = rpc.NewRegistry()
	}
	if s.errorClassifier == nil {
		s.errorClassifier = defaultErrorClassifier
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if conf.MetricsEnabled {
		m, err := newProcedureMetrics(s.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register procedure metrics: %w", err)
		}
		s.metrics = m
	}

	build := deps.TransportBuilder
	if build == nil {
		if conf.BusRPCEnabled && !transport.GetCapabilities(conf.PubSubSystem).SupportsBusRPC() {
			return nil, fmt.Errorf("%w: %s", errspkg.ErrBusRPCUnsupported, conf.PubSubSystem)
		}
		build = transport.Build
	}
	t, err := build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s transport: %w", conf.PubSubSystem, err)
	}
	s.transport = t
	s.publisher = t.Publisher
	s.subscriber = t.Subscriber

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = t.Close()
		return nil, err
	}

	s.rpcServer = rpc.NewServer(s.registry, rpc.ServerConfig{
		MaxBodyBytes: conf.RPCMaxBodyBytes,
		RateLimit:    conf.RPCRateLimit,
		RateBurst:    conf.RPCRateBurst,
	}, log)

	return s, nil
}

// Registry exposes the procedure table the JSON-RPC endpoint dispatches into.
func (s *Service) Registry() *rpc.Registry {
	return s.registry
}

// Handler returns the JSON-RPC HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.rpcServer.Handler()
}

// Start serves JSON-RPC, the auxiliary HTTP servers and, with bus RPC
// enabled, the router until ctx is cancelled or one of them fails.
func (s *Service) Start(ctx context.Context) error {
	s.startWebUIServer()
	s.registerMetricsEndpoint()

	g, gctx := errgroup.WithContext(ctx)

	s.Logger.Info("Starting JSON-RPC server", loggingpkg.LogFields{"address": s.Conf.RPCAddress})
	handler := s.rpcServer.Handler()
	g.Go(func() error {
		return serveHTTP(gctx, s.Conf.RPCAddress, handler)
	})

	s.httpServersMu.Lock()
	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		g.Go(func() error {
			return serveHTTP(gctx, addr, mux)
		})
	}
	s.httpServersMu.Unlock()

	if s.Conf.BusRPCEnabled {
		g.Go(func() error {
			return routerRun(s.router, gctx)
		})
	}

	return g.Wait()
}

// Close stops the router and closes the transport. A router that never ran
// is skipped, since closing it would wait out CloseTimeout for handlers that
// were never started.
func (s *Service) Close() error {
	if s.router != nil && s.router.IsRunning() {
		if err := s.router.Close(); err != nil {
			s.Logger.Error("Failed to close router", err, nil)
		}
	}
	return s.transport.Close()
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []RouterMiddleware
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares(s.Conf)
	}
	registrations := make([]RouterMiddleware, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on an auxiliary server listening on
// port. Servers start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}
