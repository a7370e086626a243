package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_SupportsReliableDelivery(t *testing.T) {
	assert.True(t, AMQPCapabilities.SupportsReliableDelivery())
	assert.True(t, NATSCapabilities.SupportsReliableDelivery())
	assert.False(t, KafkaCapabilities.SupportsReliableDelivery())
}

func TestBundledCapabilities(t *testing.T) {
	bundled := map[string]Capabilities{
		"channel": ChannelCapabilities,
		"amqp":    AMQPCapabilities,
		"kafka":   KafkaCapabilities,
		"nats":    NATSCapabilities,
		"aws":     AWSCapabilities,
	}
	for name, caps := range bundled {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, name, caps.Name)
			assert.True(t, caps.SupportsAck)
		})
	}

	assert.False(t, ChannelCapabilities.Durable, "in-memory subscriptions do not survive restarts")
	for _, caps := range []Capabilities{AMQPCapabilities, KafkaCapabilities, NATSCapabilities, AWSCapabilities} {
		assert.True(t, caps.Durable, caps.Name)
		assert.True(t, caps.SharedSubscription, caps.Name)
	}
}
