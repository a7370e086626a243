// Package transport builds the subscriber the gateway consumes repository
// events from. Each backend lives in its own sub-package and registers a
// Builder under the name used by the pubsub_system setting.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Subscription is the resolved source of events.
type Subscription struct {
	// Topic is the event topic name, from the descriptor or its default.
	Topic string
	// BrokerURI locates the broker; its form depends on the backend.
	BrokerURI string
	// ClientID identifies this consumer to the broker.
	ClientID string
	// Name is the durable subscription name shared by gateway replicas.
	Name string
}

// Validate reports the first missing field.
func (s Subscription) Validate() error {
	switch {
	case s.Topic == "":
		return errors.New("transport: subscription topic is required")
	case s.Name == "":
		return errors.New("transport: subscription name is required")
	case s.ClientID == "":
		return errors.New("transport: client id is required")
	}
	return nil
}

// Transport is what a builder produces. Publisher is only set by backends
// that can loop messages back in process, such as the channel transport.
type Transport struct {
	Subscriber message.Subscriber
	Publisher  message.Publisher
}

// Close closes the subscriber and, when distinct, the publisher.
func (t Transport) Close() error {
	var errs []error
	if t.Subscriber != nil {
		errs = append(errs, t.Subscriber.Close())
	}
	if t.Publisher != nil && any(t.Publisher) != any(t.Subscriber) {
		errs = append(errs, t.Publisher.Close())
	}
	return errors.Join(errs...)
}

// Builder creates a transport for one subscription.
type Builder func(ctx context.Context, cfg Config, sub Subscription, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the settings backends need beyond the subscription itself.
type Config interface {
	// GetPubSubSystem returns the transport name.
	GetPubSubSystem() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
