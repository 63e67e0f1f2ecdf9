// Package http delivers crudflow events as HTTP POST requests (webhooks) and
// accepts them on a local listener.
package http

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/crudflow/transport"
)

const TransportName = "http"

// DefaultServerAddress is used when no listener address is configured.
const DefaultServerAddress = ":8082"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmhttp.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, cfg wmhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmhttp.NewSubscriber(addr, cfg, logger)
}

func init() {
	Register()
}

// Register adds the http transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// TopicURL joins the publisher base URL and a topic name.
func TopicURL(base, topic string) string {
	if base == "" || strings.HasSuffix(base, "/") {
		return base + topic
	}
	return base + "/" + topic
}

func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	base := cfg.GetHTTPPublisherURL()
	if base == "" {
		return transport.Transport{}, fmt.Errorf("http: publisher URL is required")
	}
	addr := cfg.GetHTTPServerAddress()
	if addr == "" {
		addr = DefaultServerAddress
	}

	publisher, err := PublisherFactory(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
			return wmhttp.DefaultMarshalMessageFunc(TopicURL(base, topic), msg)
		},
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("http publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(addr, wmhttp.SubscriberConfig{
		UnmarshalMessageFunc: wmhttp.DefaultUnmarshalMessageFunc,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, fmt.Errorf("http subscriber: %w", err)
	}

	if s, ok := subscriber.(*wmhttp.Subscriber); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
				logger.Error("HTTP event listener stopped", err, watermill.LogFields{"addr": addr})
			}
		}()
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
