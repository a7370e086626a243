// Package eventgateway subscribes to the event topic of a content repository
// and routes node events. Content events lying under a configured parent
// folder go to the scoped content handler and all other content events go to
// the general one. Folder events are serialized again and forwarded to a
// serverless function, either an AWS Lambda invoked asynchronously or an
// HTTP endpoint.
//
// The topic and broker are looked up once at startup by sending OPTIONS to
// the gateway's events endpoint. When the lookup keeps failing the configured
// defaults are used and the gateway starts anyway.
//
// # Transports
//
// The subscription transport is picked by Config.PubSubSystem:
//   - amqp: durable queue "<topic>_<subscription>" bound to the topic exchange
//   - kafka: consumer group named after the subscription
//   - nats: JetStream durable consumer named after the subscription
//   - aws: SNS topic fanned out to the SQS queue "<topic>-<subscription>"
//   - channel: in-memory Go channels for local runs and tests
//
// Import the transports you need for their registration side effect, or all
// of them at once:
//
//	import _ "github.com/drblury/eventgateway/transport/transports"
//
// # Embedding
//
// cmd/eventgateway runs the gateway from environment variables and an
// optional YAML file. Programs embedding it build the same pieces:
//
//	conf := eventgateway.DefaultConfig()
//	registry := eventgateway.NewHandlerRegistry()
//	_ = eventgateway.RegisterContentHandlers(registry, logger)
//	fwd, _ := eventgateway.NewForwarder(ctx, &conf, logger)
//	pipeline, _ := eventgateway.NewPipeline(route, registry, fwd, logger)
//	svc, _ := eventgateway.NewService(ctx, &conf, logger, pipeline, eventgateway.ServiceDependencies{})
//	_ = svc.Start(ctx)
package eventgateway
