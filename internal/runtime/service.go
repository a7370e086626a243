package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/eventgateway/internal/endpoint"
	"github.com/drblury/eventgateway/internal/routing"
	configpkg "github.com/drblury/eventgateway/internal/runtime/config"
	errspkg "github.com/drblury/eventgateway/internal/runtime/errors"
	loggingpkg "github.com/drblury/eventgateway/internal/runtime/logging"
	metricspkg "github.com/drblury/eventgateway/internal/runtime/metrics"
	"github.com/drblury/eventgateway/transport"
)

const httpShutdownTimeout = 5 * time.Second

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// DescriptorResolver returns the topic descriptor of the subscription. The
// endpoint resolver is the production implementation.
type DescriptorResolver interface {
	Resolve(ctx context.Context) endpoint.Descriptor
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults built from the config.
type ServiceDependencies struct {
	Resolver                  DescriptorResolver
	Transports                *transport.Registry
	Metrics                   *metricspkg.Metrics
	Registerer                prometheus.Registerer
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
}

// Service wires the resolved subscription, the watermill router, and the
// routing pipeline.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	descriptor   endpoint.Descriptor
	subscription transport.Subscription
	transport    transport.Transport
	capabilities transport.Capabilities
	router       *message.Router
	pipeline     *routing.Pipeline
	registerer   prometheus.Registerer

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	running       []*http.Server
}

// NewService resolves the topic descriptor, builds the subscriber for it, and
// attaches the pipeline to a router. Resolution always completes before the
// subscriber is built.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, pipeline *routing.Pipeline, deps ServiceDependencies) (*Service, error) {
	switch {
	case conf == nil:
		return nil, errspkg.ErrConfigRequired
	case log == nil:
		return nil, errspkg.ErrLoggerRequired
	case pipeline == nil:
		return nil, errspkg.ErrPipelineRequired
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event service",
		loggingpkg.LogFields{
			"pubsub_system": conf.PubSubSystem,
			"config":        conf.String(),
		})

	resolver := deps.Resolver
	if resolver == nil {
		resolver = endpoint.FromConfig(conf, endpoint.WithLogger(log), endpoint.WithMetrics(deps.Metrics))
	}
	descriptor := resolver.Resolve(ctx)
	if descriptor.TopicName == "" {
		return nil, errspkg.ErrTopicRequired
	}

	s := &Service{
		Conf:       conf,
		Logger:     log,
		descriptor: descriptor,
		subscription: transport.Subscription{
			Topic:     descriptor.TopicName,
			BrokerURI: descriptor.BrokerURI,
			ClientID:  conf.ClientID,
			Name:      conf.SubscriptionName,
		},
		pipeline:   pipeline,
		registerer: deps.Registerer,
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}

	registry := deps.Transports
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	tr, err := registry.Build(ctx, conf, s.subscription, wmLogger)
	if err != nil {
		return nil, err
	}
	if tr.Subscriber == nil {
		_ = tr.Close()
		return nil, errspkg.ErrSubscriberRequired
	}
	s.transport = tr
	s.capabilities = registry.GetCapabilities(conf.PubSubSystem)
	if !s.capabilities.Durable {
		log.Info("Transport subscription is not durable, events published while the gateway is down are lost", loggingpkg.LogFields{
			"pubsub_system": conf.PubSubSystem,
		})
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = tr.Close()
		return nil, err
	}

	s.router.AddNoPublisherHandler(
		s.subscription.Name,
		s.subscription.Topic,
		tr.Subscriber,
		pipeline.Handle,
	)

	log.Info("Subscribed to event topic", loggingpkg.LogFields{
		"topic":        s.subscription.Topic,
		"broker_uri":   configpkg.RedactURL(s.subscription.BrokerURI),
		"subscription": s.subscription.Name,
		"client_id":    s.subscription.ClientID,
		"fallback":     descriptor.Fallback,
		"durable":      s.capabilities.Durable,
		"shared":       s.capabilities.SharedSubscription,
		"redelivery":   s.capabilities.SupportsReliableDelivery(),
	})
	return s, nil
}

// Start runs the router until ctx is cancelled, then drains in-flight
// forwards and closes the transport.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	s.startHTTPServers()

	runErr := routerRun(s.router, ctx)

	s.pipeline.Wait()
	closeErr := s.transport.Close()
	s.stopHTTPServers()

	if closeErr != nil {
		s.Logger.Error("Failed to close transport", closeErr, loggingpkg.LogFields{"pubsub_system": s.Conf.PubSubSystem})
	}
	return errors.Join(runErr, closeErr)
}

// Running is closed once the router is processing messages.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Descriptor returns the descriptor the subscription was built from.
func (s *Service) Descriptor() endpoint.Descriptor {
	return s.descriptor
}

// Subscription returns the subscription the router consumes.
func (s *Service) Subscription() transport.Subscription {
	return s.subscription
}

// Capabilities reports the delivery guarantees of the selected transport.
func (s *Service) Capabilities() transport.Capabilities {
	return s.capabilities
}

// Publisher returns the in-process publisher of transports that have one, or nil.
func (s *Service) Publisher() message.Publisher {
	return s.transport.Publisher
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		s.running = append(s.running, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}()
	}
}

func (s *Service) stopHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	for _, srv := range s.running {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to stop HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
	s.running = nil
}
