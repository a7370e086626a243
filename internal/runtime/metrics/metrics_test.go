package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	if err := m.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	m.EventReceived()
	m.EventReceived()
	m.EventDropped()
	m.HandlerInvoked("scoped", nil)
	m.HandlerInvoked("scoped", errors.New("boom"))
	m.Forwarded(nil)
	m.ResolveAttempted()
	m.ResolvedWithFallback(true)

	if got := testutil.ToFloat64(m.eventsReceived); got != 2 {
		t.Fatalf("expected 2 received, got %v", got)
	}
	if got := testutil.ToFloat64(m.handlerInvocations.WithLabelValues("scoped", StatusError)); got != 1 {
		t.Fatalf("expected 1 failed invocation, got %v", got)
	}
	if got := testutil.ToFloat64(m.resolveFallback); got != 1 {
		t.Fatalf("expected fallback gauge 1, got %v", got)
	}

	expected := `
# HELP eventgateway_forwards_total Events handed to the function sink by outcome
# TYPE eventgateway_forwards_total counter
eventgateway_forwards_total{status="ok"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "eventgateway_forwards_total"); err != nil {
		t.Fatalf("unexpected forwards metric: %v", err)
	}
}

func TestRegisterReusesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg)
	if err := first.Register(); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	second := New(reg)
	if err := second.Register(); err != nil {
		t.Fatalf("expected duplicate registration to be tolerated, got %v", err)
	}

	second.EventDropped()
	if got := testutil.ToFloat64(first.eventsDropped); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.EventReceived()
	m.EventDropped()
	m.HandlerInvoked("general", nil)
	m.Forwarded(errors.New("x"))
	m.ResolveAttempted()
	m.ResolvedWithFallback(false)
	if err := m.Register(); err != nil {
		t.Fatalf("nil Register: %v", err)
	}
}
