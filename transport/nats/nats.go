// Package nats carries crudflow events over NATS, either core subjects or
// JetStream streams.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/crudflow/transport"
)

const TransportName = "nats"

// QueueGroup spreads procedure topics across bus RPC replicas.
const QueueGroup = "crudflow"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmnats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the nats transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// ConnectOptions are applied to every NATS connection the transport opens.
func ConnectOptions() []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("crudflow"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
	}
}

func jetStreamConfig(enabled bool) wmnats.JetStreamConfig {
	return wmnats.JetStreamConfig{
		Disabled:      !enabled,
		AutoProvision: enabled,
		TrackMsgId:    enabled,
		DurablePrefix: QueueGroup,
	}
}

func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, fmt.Errorf("nats: URL is required")
	}
	js := jetStreamConfig(cfg.GetNATSJetStream())
	marshaler := &wmnats.NATSMarshaler{}

	publisher, err := PublisherFactory(wmnats.PublisherConfig{
		URL:         url,
		NatsOptions: ConnectOptions(),
		Marshaler:   marshaler,
		JetStream:   js,
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("nats publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(wmnats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      ConnectOptions(),
		Unmarshaler:      marshaler,
		JetStream:        js,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, fmt.Errorf("nats subscriber: %w", err)
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// CapabilitiesFor reports what the transport offers with or without JetStream.
func CapabilitiesFor(jetStream bool) transport.Capabilities {
	if jetStream {
		return transport.NATSJetStreamCapabilities
	}
	return transport.NATSCapabilities
}
