// Package amqp subscribes to the event topic on an AMQP 0-9-1 broker through
// a durable queue named after the subscription.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/drblury/eventgateway/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "amqp"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

// CloseConnection allows overriding how a connection is released when the
// subscriber cannot be created.
var CloseConnection = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.AMQPCapabilities)
}

// Build connects to sub.BrokerURI and prepares a durable subscriber. The
// queue is "<topic>_<subscription name>" so replicas share it.
func Build(ctx context.Context, cfg transport.Config, sub transport.Subscription, logger watermill.LoggerAdapter) (transport.Transport, error) {
	amqpConfig := amqp.NewDurablePubSubConfig(
		sub.BrokerURI,
		amqp.GenerateQueueNameTopicNameWithSuffix(sub.Name),
	)

	conn, err := ConnectionFactory(ConnectionConfig(sub), logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		if closeErr := CloseConnection(conn); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close amqp connection: %w", closeErr))
		}
		return transport.Transport{}, err
	}

	logger.Info("Created AMQP subscriber", watermill.LogFields{
		"queue":     amqpConfig.Queue.GenerateName(sub.Topic),
		"client_id": sub.ClientID,
	})
	return transport.Transport{Subscriber: subscriber}, nil
}

// ConnectionConfig reports the client id as the AMQP connection name.
func ConnectionConfig(sub transport.Subscription) amqp.ConnectionConfig {
	return amqp.ConnectionConfig{
		AmqpURI: sub.BrokerURI,
		AmqpConfig: &amqp091.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Properties: amqp091.Table{
				"connection_name": sub.ClientID,
			},
		},
		Reconnect: amqp.DefaultReconnectConfig(),
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.AMQPCapabilities
}
