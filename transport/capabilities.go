package transport

// Capabilities describes what a transport backend guarantees. The service uses
// it to decide whether bus RPC can be offered and to report the backend on
// the introspection endpoint.
type Capabilities struct {
	Name string `json:"name"`

	// SupportsOrdering indicates events for one topic arrive in publish order.
	SupportsOrdering bool `json:"supports_ordering"`
	// SupportsAck indicates explicit acknowledgment.
	SupportsAck bool `json:"supports_ack"`
	// SupportsNack indicates negative acknowledgment triggers redelivery.
	SupportsNack bool `json:"supports_nack"`
	// SupportsTracing indicates message metadata survives the hop, so trace and
	// correlation ids propagate.
	SupportsTracing bool `json:"supports_tracing"`
	// SupportsSubscribe is false for publish-only backends, which cannot serve
	// bus RPC.
	SupportsSubscribe bool `json:"supports_subscribe"`

	// MaxMessageSize in bytes, 0 when unlimited or unknown.
	MaxMessageSize int64 `json:"max_message_size,omitempty"`
}

// SupportsReliableDelivery reports at-least-once semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// SupportsBusRPC reports whether procedures can be served over this backend.
// Replies are correlated through metadata, so the backend must carry it.
func (c Capabilities) SupportsBusRPC() bool {
	return c.SupportsSubscribe && c.SupportsTracing
}

var (
	ChannelCapabilities = Capabilities{
		Name:              "channel",
		SupportsOrdering:  true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsTracing:   true,
		SupportsSubscribe: true,
	}

	KafkaCapabilities = Capabilities{
		Name:              "kafka",
		SupportsOrdering:  true,
		SupportsAck:       true,
		SupportsTracing:   true,
		SupportsSubscribe: true,
		MaxMessageSize:    1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsOrdering:  true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsTracing:   true,
		SupportsSubscribe: true,
	}

	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsTracing:   true,
		SupportsSubscribe: true,
		MaxMessageSize:    1 << 20,
	}

	// NATSJetStreamCapabilities apply when the nats transport runs with JetStream.
	NATSJetStreamCapabilities = Capabilities{
		Name:              "nats",
		SupportsOrdering:  true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsTracing:   true,
		SupportsSubscribe: true,
		MaxMessageSize:    1 << 20,
	}

	AWSCapabilities = Capabilities{
		Name:              "aws",
		SupportsOrdering:  true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsTracing:   true,
		SupportsSubscribe: true,
		MaxMessageSize:    262144,
	}

	HTTPCapabilities = Capabilities{
		Name:              "http",
		SupportsTracing:   true,
		SupportsSubscribe: true,
	}

	// IOCapabilities: the file backend appends events and replays them from the
	// start on subscribe, so it is unsuitable for request/reply.
	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
