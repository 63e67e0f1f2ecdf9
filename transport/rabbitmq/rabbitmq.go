// Package rabbitmq carries crudflow events over AMQP 0.9.1. Every topic maps
// to a durable fan-out exchange with a durable queue of the same name.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/crudflow/transport"
)

const TransportName = "rabbitmq"

var ErrURLRequired = errors.New("rabbitmq: rabbitmq_url is required")

// Dialer builds the AMQP connection and both halves on top of it. Tests swap
// DefaultDialer to avoid a broker.
type Dialer struct {
	Connect    func(amqp.ConnectionConfig, watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error)
	Publisher  func(amqp.Config, watermill.LoggerAdapter, *amqp.ConnectionWrapper) (message.Publisher, error)
	Subscriber func(amqp.Config, watermill.LoggerAdapter, *amqp.ConnectionWrapper) (message.Subscriber, error)
}

var DefaultDialer = Dialer{
	Connect: amqp.NewConnection,
	Publisher: func(c amqp.Config, l watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
		return amqp.NewPublisherWithConnection(c, l, conn)
	},
	Subscriber: func(c amqp.Config, l watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(c, l, conn)
	},
}

func init() {
	Register()
}

func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

func AMQPConfig(url string) amqp.Config {
	return amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicName)
}

func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return DefaultDialer.Dial(cfg.GetRabbitMQURL(), logger)
}

// Dial opens one reconnecting connection shared by publisher and subscriber.
func (d Dialer) Dial(url string, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if url == "" {
		return transport.Transport{}, ErrURLRequired
	}
	conn, err := d.Connect(amqp.ConnectionConfig{AmqpURI: url, Reconnect: amqp.DefaultReconnectConfig()}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("rabbitmq: connect: %w", err)
	}
	closeConn := func() {
		if conn != nil {
			_ = conn.Close()
		}
	}

	conf := AMQPConfig(url)
	pub, err := d.Publisher(conf, logger, conn)
	if err != nil {
		closeConn()
		return transport.Transport{}, fmt.Errorf("rabbitmq: publisher: %w", err)
	}
	sub, err := d.Subscriber(conf, logger, conn)
	if err != nil {
		_ = pub.Close()
		closeConn()
		return transport.Transport{}, fmt.Errorf("rabbitmq: subscriber: %w", err)
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}
