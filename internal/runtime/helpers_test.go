package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/crudflow/internal/runtime/config"
	loggingpkg "github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/transport"
	"github.com/drblury/crudflow/transport/transporttest"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func newTestConfig() *configpkg.Config {
	cfg := &configpkg.Config{PubSubSystem: "channel"}
	cfg.ApplyDefaults()
	return cfg
}

func fakeTransport(pub *transporttest.Publisher, sub *transporttest.Subscriber) transport.Builder {
	return func(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{Publisher: pub, Subscriber: sub}, nil
	}
}

func goChannelTransport(pubSub *gochannel.GoChannel) transport.Builder {
	return func(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{Publisher: pubSub, Subscriber: pubSub}, nil
	}
}

// newTestService builds a Service over a recording publisher and a private
// Prometheus registry.
func newTestService(t *testing.T, cfg *configpkg.Config, deps ServiceDependencies) (*Service, *transporttest.Publisher) {
	t.Helper()
	pub := &transporttest.Publisher{}
	if deps.TransportBuilder == nil {
		deps.TransportBuilder = fakeTransport(pub, &transporttest.Subscriber{})
	}
	if deps.Registerer == nil {
		reg := prometheus.NewRegistry()
		deps.Registerer = reg
		deps.Gatherer = reg
	}
	svc, err := NewService(context.Background(), cfg, newTestLogger(), deps)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, pub
}

type recordingTransport struct {
	pub *transporttest.Publisher
	sub *transporttest.Subscriber
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{pub: &transporttest.Publisher{}, sub: &transporttest.Subscriber{}}
}

func (r *recordingTransport) build(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
	return transport.Transport{Publisher: r.pub, Subscriber: r.sub}, nil
}
