// Package kafka subscribes to the event topic on a Kafka cluster with a
// consumer group named after the subscription.
package kafka

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/eventgateway/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a consumer group subscriber. sub.BrokerURI is a comma
// separated broker list; a "kafka://" scheme is accepted and stripped.
func Build(ctx context.Context, cfg transport.Config, sub transport.Subscription, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := Brokers(sub.BrokerURI)

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			ConsumerGroup:         sub.Name,
			OverwriteSaramaConfig: SaramaConfig(sub),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	logger.Info("Created Kafka subscriber", watermill.LogFields{
		"brokers":        brokers,
		"consumer_group": sub.Name,
		"client_id":      sub.ClientID,
	})
	return transport.Transport{Subscriber: subscriber}, nil
}

// SaramaConfig starts from the watermill defaults and identifies the client.
// A new group starts at the oldest retained offset so no event is skipped.
func SaramaConfig(sub transport.Subscription) *sarama.Config {
	sc := kafka.DefaultSaramaSubscriberConfig()
	sc.ClientID = sub.ClientID
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	return sc
}

// Brokers splits a broker URI into host:port entries.
func Brokers(uri string) []string {
	var brokers []string
	for _, b := range strings.Split(uri, ",") {
		b = strings.TrimSpace(b)
		b = strings.TrimPrefix(b, "kafka://")
		b = strings.TrimSuffix(b, "/")
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
