// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/eventgateway/transport/amqp"
	_ "github.com/drblury/eventgateway/transport/aws"
	_ "github.com/drblury/eventgateway/transport/channel"
	_ "github.com/drblury/eventgateway/transport/kafka"
	_ "github.com/drblury/eventgateway/transport/nats"
)
