/*
Package runtime hosts the gateway service: it resolves where events are
published, subscribes there, and feeds every message to the routing pipeline.

# Startup

NewService runs, in order:
  - topic descriptor resolution (internal/endpoint), falling back to the
    configured defaults
  - subscriber construction through the transport registry
  - a Watermill router with the middleware chain and one consumer handler

# Middleware (middleware.go)

  - CorrelationID: ULID correlation id in the message metadata
  - LogMessages: debug logging of payloads
  - Tracer: OpenTelemetry span per message
  - Metrics: Watermill router metrics and the /metrics endpoint
  - Recoverer: panic recovery

There is no retry or poison queue middleware. The pipeline acks every
message, including the ones it drops.

# Shutdown

Start returns after the context is cancelled and the router stopped. It then
waits for background forwards and closes the transport.

# Sub-packages

  - config/: gateway configuration with validation
  - errors/: sentinel errors
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling
  - logging/: logger interface and adapters
  - metrics/: gateway Prometheus counters
*/
package runtime
