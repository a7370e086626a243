// Package metrics holds the Prometheus collectors owned by the gateway.
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventgateway"

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics groups the gateway counters.
type Metrics struct {
	mu sync.Mutex

	eventsReceived     prometheus.Counter
	eventsDropped      prometheus.Counter
	handlerInvocations *prometheus.CounterVec
	forwards           *prometheus.CounterVec
	resolveAttempts    prometheus.Counter
	resolveFallback    prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// New creates the collectors. They are not registered until Register is called.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:         registerer,
		eventsReceived:     newCounter("events_received_total", "Messages handed to the routing pipeline"),
		eventsDropped:      newCounter("events_dropped_total", "Messages dropped because they could not be deserialized"),
		handlerInvocations: newCounterVec("handler_invocations_total", "Content handler invocations by handler and outcome", []string{"handler", "status"}),
		forwards:           newCounterVec("forwards_total", "Events handed to the function sink by outcome", []string{"status"}),
		resolveAttempts:    newCounter("resolve_attempts_total", "Topic descriptor lookups issued against the gateway"),
		resolveFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolve_fallback",
			Help:      "1 when the subscription runs on default topic settings",
		}),
	}
}

// Register registers the collectors. Safe to call multiple times; collectors
// already present in the registry are adopted in place of the new ones.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	if m.eventsReceived, err = register(m.registerer, m.eventsReceived); err != nil {
		return err
	}
	if m.eventsDropped, err = register(m.registerer, m.eventsDropped); err != nil {
		return err
	}
	if m.handlerInvocations, err = register(m.registerer, m.handlerInvocations); err != nil {
		return err
	}
	if m.forwards, err = register(m.registerer, m.forwards); err != nil {
		return err
	}
	if m.resolveAttempts, err = register(m.registerer, m.resolveAttempts); err != nil {
		return err
	}
	if m.resolveFallback, err = register(m.registerer, m.resolveFallback); err != nil {
		return err
	}
	m.registered = true
	return nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) EventReceived() {
	if m != nil {
		m.eventsReceived.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

func (m *Metrics) HandlerInvoked(handler string, err error) {
	if m != nil {
		m.handlerInvocations.WithLabelValues(handler, status(err)).Inc()
	}
}

func (m *Metrics) Forwarded(err error) {
	if m != nil {
		m.forwards.WithLabelValues(status(err)).Inc()
	}
}

func (m *Metrics) ResolveAttempted() {
	if m != nil {
		m.resolveAttempts.Inc()
	}
}

func (m *Metrics) ResolvedWithFallback(fallback bool) {
	if m == nil {
		return
	}
	if fallback {
		m.resolveFallback.Set(1)
		return
	}
	m.resolveFallback.Set(0)
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
