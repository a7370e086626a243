// Package routing decides what happens to each repository event: content
// events go to a scoped or general handler depending on their location and
// folder events are forwarded to the function sink.
package routing

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/eventgateway/internal/event"
	"github.com/drblury/eventgateway/internal/forward"
	errspkg "github.com/drblury/eventgateway/internal/runtime/errors"
	"github.com/drblury/eventgateway/internal/runtime/logging"
	"github.com/drblury/eventgateway/internal/runtime/metrics"
)

// Route holds the predicate parameters of the pipeline.
type Route struct {
	ParentNodeID    string
	ContentNodeType string
	FolderNodeType  string
}

// Outcome records what the pipeline did with one payload.
type Outcome struct {
	EventID string
	Dropped bool
	// Handler is the route dispatched to, empty when no handler ran.
	Handler   string
	Forwarded bool
}

// Pipeline applies the route to each payload. It keeps no state between
// messages besides the in-flight forwards.
type Pipeline struct {
	registry  *Registry
	forwarder forward.Forwarder
	logger    logging.ServiceLogger
	metrics   *metrics.Metrics

	content Predicate
	scoped  Predicate
	folder  Predicate

	forwards *errgroup.Group
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithForwardConcurrency runs up to n forwards in the background. With n <= 0
// forwards run inline before Process returns.
func WithForwardConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n <= 0 {
			p.forwards = nil
			return
		}
		g := &errgroup.Group{}
		g.SetLimit(n)
		p.forwards = g
	}
}

// NewPipeline validates the registry holds both content routes and freezes it.
func NewPipeline(route Route, registry *Registry, forwarder forward.Forwarder, logger logging.ServiceLogger, opts ...PipelineOption) (*Pipeline, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry", errspkg.ErrHandlerRequired)
	}
	if forwarder == nil {
		return nil, errspkg.ErrForwarderRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	for _, name := range []string{RouteScoped, RouteGeneral} {
		if _, ok := registry.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s", errspkg.ErrHandlerRequired, name)
		}
	}
	registry.Freeze()

	p := &Pipeline{
		registry:  registry,
		forwarder: forwarder,
		logger:    logger,
		content:   NodeType(route.ContentNodeType),
		scoped:    HasAncestor(route.ParentNodeID),
		folder:    NodeType(route.FolderNodeType),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Handle adapts the pipeline to a watermill no-publish handler. Messages are
// always acked: nothing the pipeline does is retried.
func (p *Pipeline) Handle(msg *message.Message) error {
	p.Process(msg.Context(), msg.Payload)
	return nil
}

// Process routes one payload.
func (p *Pipeline) Process(ctx context.Context, payload []byte) Outcome {
	p.metrics.EventReceived()
	span := trace.SpanFromContext(ctx)

	ev, err := event.Deserialize(payload)
	if err != nil {
		p.metrics.EventDropped()
		p.logger.Error("Dropping malformed event", err, logging.LogFields{"payload_size": len(payload)})
		span.SetAttributes(attribute.Bool("eventgateway.dropped", true))
		return Outcome{Dropped: true}
	}

	out := Outcome{EventID: ev.ID}
	log := p.logger.With(logging.LogFields{"event_id": ev.ID, "event_type": ev.Type})

	if p.content.Matches(ev) {
		out.Handler = RouteGeneral
		if p.scoped.Matches(ev) {
			out.Handler = RouteScoped
		}
		p.dispatch(ctx, log, out.Handler, ev)
	}

	// Folder events are forwarded whatever the content branch decided.
	if p.folder.Matches(ev) {
		out.Forwarded = true
		p.forward(ctx, log, ev)
	}

	span.SetAttributes(
		attribute.String("eventgateway.event_id", ev.ID),
		attribute.String("eventgateway.handler", out.Handler),
		attribute.Bool("eventgateway.forwarded", out.Forwarded),
	)
	return out
}

func (p *Pipeline) dispatch(ctx context.Context, log logging.ServiceLogger, name string, ev event.Event) {
	err := p.invoke(ctx, name, ev)
	p.metrics.HandlerInvoked(name, err)
	if err != nil {
		log.Error("Content handler failed", err, logging.LogFields{"handler": name})
	}
}

func (p *Pipeline) invoke(ctx context.Context, name string, ev event.Event) (err error) {
	h, ok := p.registry.Get(name)
	if !ok {
		return &HandlerError{Handler: name, EventID: ev.ID, Err: errspkg.ErrHandlerRequired}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Handler: name, EventID: ev.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := h.OnReceive(ctx, ev); err != nil {
		return &HandlerError{Handler: name, EventID: ev.ID, Err: err}
	}
	return nil
}

func (p *Pipeline) forward(ctx context.Context, log logging.ServiceLogger, ev event.Event) {
	payload, err := event.Serialize(ev)
	if err != nil {
		p.metrics.Forwarded(err)
		log.Error("Failed to serialize folder event", err, nil)
		return
	}
	log.Debug("Sending the event to the function", logging.LogFields{"payload": string(payload)})

	send := func() {
		ack, err := p.forwarder.Forward(ctx, payload, ev)
		p.metrics.Forwarded(err)
		if err != nil {
			log.Error("Failed to forward event", err, nil)
			return
		}
		log.Debug("Event forwarded", logging.LogFields{
			"target":      ack.Target,
			"status_code": ack.StatusCode,
			"request_id":  ack.RequestID,
		})
	}

	if p.forwards == nil {
		send()
		return
	}
	// The message may be acked before the forward finishes; keep the
	// context values but not its cancellation.
	ctx = context.WithoutCancel(ctx)
	p.forwards.Go(func() error {
		send()
		return nil
	})
}

// Wait blocks until background forwards have finished.
func (p *Pipeline) Wait() {
	if p.forwards != nil {
		_ = p.forwards.Wait()
	}
}
