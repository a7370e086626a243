package eventgateway

import (
	"github.com/drblury/eventgateway/internal/endpoint"
	"github.com/drblury/eventgateway/internal/event"
	"github.com/drblury/eventgateway/internal/forward"
	"github.com/drblury/eventgateway/internal/handlers"
	"github.com/drblury/eventgateway/internal/routing"
	runtimepkg "github.com/drblury/eventgateway/internal/runtime"
	configpkg "github.com/drblury/eventgateway/internal/runtime/config"
	errspkg "github.com/drblury/eventgateway/internal/runtime/errors"
	loggingpkg "github.com/drblury/eventgateway/internal/runtime/logging"
	metricspkg "github.com/drblury/eventgateway/internal/runtime/metrics"
	"github.com/drblury/eventgateway/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	DescriptorResolver  = runtimepkg.DescriptorResolver
	Metrics             = metricspkg.Metrics

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	Event          = event.Event
	Resource       = event.Resource
	NodeResource   = event.NodeResource
	HierarchyEntry = event.HierarchyEntry

	Descriptor      = endpoint.Descriptor
	Resolver        = endpoint.Resolver
	ResolverOption  = endpoint.Option
	ResolutionError = endpoint.ResolutionError

	Predicate       = routing.Predicate
	PredicateFunc   = routing.PredicateFunc
	Route           = routing.Route
	Pipeline        = routing.Pipeline
	PipelineOption  = routing.PipelineOption
	Outcome         = routing.Outcome
	Handler         = routing.Handler
	HandlerFunc     = routing.HandlerFunc
	HandlerRegistry = routing.Registry
	HandlerError    = routing.HandlerError

	Forwarder    = forward.Forwarder
	Ack          = forward.Ack
	ForwardError = forward.ForwardError

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	DeserializationError  = event.DeserializationError

	Subscription          = transport.Subscription
	Transport             = transport.Transport
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	Deserialize = event.Deserialize
	Serialize   = event.Serialize
	NewNode     = event.NewNode

	NewResolver        = endpoint.NewResolver
	ResolverFromConfig = endpoint.FromConfig

	NodeType    = routing.NodeType
	HasAncestor = routing.HasAncestor
	And         = routing.And
	Or          = routing.Or
	Not         = routing.Not

	NewHandlerRegistry      = routing.NewRegistry
	NewPipeline             = routing.NewPipeline
	WithMetrics             = routing.WithMetrics
	WithForwardConcurrency  = routing.WithForwardConcurrency
	RegisterContentHandlers = handlers.Register

	NewForwarder       = forward.New
	NewLambdaForwarder = forward.NewLambdaForwarder
	NewHTTPForwarder   = forward.NewHTTPForwarder

	NewMetrics = metricspkg.New

	NewJSONLogger        = loggingpkg.NewJSONLogger
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	ParseLogLevel        = loggingpkg.ParseLevel

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build
	GetCapabilities          = transport.GetCapabilities

	ErrMalformedEvent      = event.ErrMalformed
	ErrServiceRequired     = errspkg.ErrServiceRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrHandlerNameRequired = errspkg.ErrHandlerNameRequired
	ErrSubscriberRequired  = errspkg.ErrSubscriberRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrForwarderRequired   = errspkg.ErrForwarderRequired
	ErrPipelineRequired    = errspkg.ErrPipelineRequired
	ErrRegistryFrozen      = errspkg.ErrRegistryFrozen
)

// Route names the content handlers are registered under.
const (
	RouteScoped  = routing.RouteScoped
	RouteGeneral = routing.RouteGeneral
)
