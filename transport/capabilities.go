package transport

// Capabilities describes the delivery guarantees of a transport backend.
type Capabilities struct {
	// Name is the registered transport name.
	Name string

	// Durable indicates the subscription survives gateway restarts, so events
	// published while the gateway is down are delivered later.
	Durable bool

	// SharedSubscription indicates replicas using the same subscription name
	// split the stream instead of each receiving every event.
	SharedSubscription bool

	// SupportsOrdering indicates the transport guarantees message ordering.
	SupportsOrdering bool

	// SupportsTracing indicates the transport propagates tracing headers natively.
	SupportsTracing bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the bundled transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// AMQPCapabilities for AMQP 0-9-1 brokers.
	AMQPCapabilities = Capabilities{
		Name:               "amqp",
		Durable:            true,
		SharedSubscription: true,
		SupportsOrdering:   true,
		SupportsTracing:    true,
		SupportsAck:        true,
		SupportsNack:       true,
		MaxMessageSize:     128 * 1024 * 1024,
	}

	// KafkaCapabilities for Apache Kafka.
	KafkaCapabilities = Capabilities{
		Name:               "kafka",
		Durable:            true,
		SharedSubscription: true,
		SupportsOrdering:   true,
		SupportsTracing:    true,
		SupportsAck:        true,
		SupportsNack:       false,
		MaxMessageSize:     1024 * 1024,
	}

	// NATSCapabilities for NATS JetStream.
	NATSCapabilities = Capabilities{
		Name:               "nats",
		Durable:            true,
		SharedSubscription: true,
		SupportsOrdering:   true,
		SupportsTracing:    true,
		SupportsAck:        true,
		SupportsNack:       true,
		MaxMessageSize:     1024 * 1024,
	}

	// AWSCapabilities for SNS fan-out into an SQS queue.
	AWSCapabilities = Capabilities{
		Name:               "aws",
		Durable:            true,
		SharedSubscription: true,
		SupportsTracing:    true,
		SupportsAck:        true,
		SupportsNack:       true,
		MaxMessageSize:     256 * 1024,
	}
)

// GetCapabilities returns the capabilities registered for a transport name,
// or a zero value carrying only the name when it is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
