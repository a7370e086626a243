// Package nats subscribes to the event subject through a JetStream durable
// consumer named after the subscription.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/eventgateway/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// DefaultAckWait bounds how long JetStream waits for an ack before redelivery.
const DefaultAckWait = 30 * time.Second

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a JetStream subscriber. The stream carrying the topic subject
// must already exist; the gateway never provisions streams.
func Build(ctx context.Context, cfg transport.Config, sub transport.Subscription, logger watermill.LoggerAdapter) (transport.Transport, error) {
	subscriber, err := SubscriberFactory(SubscriberConfig(sub), logger)
	if err != nil {
		return transport.Transport{}, err
	}

	logger.Info("Created NATS JetStream subscriber", watermill.LogFields{
		"durable":   sub.Name,
		"client_id": sub.ClientID,
	})
	return transport.Transport{Subscriber: subscriber}, nil
}

// SubscriberConfig maps a subscription onto the watermill subscriber settings.
func SubscriberConfig(sub transport.Subscription) nats.SubscriberConfig {
	durable := sub.Name
	return nats.SubscriberConfig{
		URL:              sub.BrokerURI,
		QueueGroupPrefix: sub.Name,
		SubscribersCount: 1,
		AckWaitTimeout:   DefaultAckWait,
		CloseTimeout:     30 * time.Second,
		NatsOptions: []nc.Option{
			nc.Name(sub.ClientID),
			nc.MaxReconnects(-1),
		},
		Unmarshaler: &nats.NATSMarshaler{},
		JetStream: nats.JetStreamConfig{
			AutoProvision: false,
			DurablePrefix: durable,
			DurableCalculator: func(string, string) string {
				return durable
			},
		},
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
