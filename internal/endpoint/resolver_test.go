package endpoint

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/drblury/eventgateway/internal/runtime/config"
	"github.com/drblury/eventgateway/internal/runtime/logging/logtest"
	"github.com/drblury/eventgateway/internal/runtime/metrics"
)

const (
	defaultTopic  = "alfresco.repo.event2"
	defaultBroker = "amqp://localhost:5672"
)

func descriptorServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodOptions {
			t.Errorf("expected OPTIONS, got %s", r.Method)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestResolveReturnsDescriptor(t *testing.T) {
	srv, calls := descriptorServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != config.EventsAPIPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entry":{"eventTopic":"repo.events","brokerUri":"amqp://broker:5672"}}`))
	})
	log := logtest.New()
	r := NewResolver(srv.URL+config.EventsAPIPath, defaultTopic, defaultBroker, WithLogger(log), WithBackoff(time.Millisecond, 3))

	got := r.Resolve(context.Background())
	want := Descriptor{TopicName: "repo.events", BrokerURI: "amqp://broker:5672"}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single request, got %d", calls.Load())
	}
	if len(log.Find("Resolved event topic")) != 1 {
		t.Fatalf("expected resolution log entry, got %+v", log.Entries())
	}
}

func TestResolveFallsBackAfterMaxAttempts(t *testing.T) {
	srv, calls := descriptorServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	log := logtest.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if err := m.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r := NewResolver(srv.URL, defaultTopic, defaultBroker, WithLogger(log), WithMetrics(m), WithBackoff(time.Millisecond, 4))

	got := r.Resolve(context.Background())
	if got.TopicName != defaultTopic || got.BrokerURI != defaultBroker || !got.Fallback {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if calls.Load() != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", calls.Load())
	}

	retries := log.Levels("error")
	if len(retries) != 4 {
		t.Fatalf("expected one error entry per attempt, got %d", len(retries))
	}
	if !strings.Contains(retries[2].Msg, "currentAttempts=3") || !strings.Contains(retries[2].Msg, "maxAttempts=4") {
		t.Fatalf("unexpected retry message %q", retries[2].Msg)
	}
	var re *ResolutionError
	if !errors.As(retries[0].Err, &re) || re.Attempt != 1 || !errors.Is(re, errUnexpectedCode) {
		t.Fatalf("expected ResolutionError for attempt 1, got %v", retries[0].Err)
	}
	if len(log.Find("Couldn't get the topic info after 4 tries. Falling back to default values.")) != 1 {
		t.Fatalf("expected fallback notice, got %+v", log.Entries())
	}

	expected := `
# HELP eventgateway_resolve_attempts_total Topic descriptor lookups issued against the gateway
# TYPE eventgateway_resolve_attempts_total counter
eventgateway_resolve_attempts_total 4
# HELP eventgateway_resolve_fallback 1 when the subscription runs on default topic settings
# TYPE eventgateway_resolve_fallback gauge
eventgateway_resolve_fallback 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "eventgateway_resolve_attempts_total", "eventgateway_resolve_fallback"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestResolveRecoversAfterTransientFailure(t *testing.T) {
	var n atomic.Int32
	srv, calls := descriptorServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if n.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"entry":{"eventTopic":"t","brokerUri":"b"}}`))
	})
	r := NewResolver(srv.URL, defaultTopic, defaultBroker, WithBackoff(time.Millisecond, 5))

	got := r.Resolve(context.Background())
	if got.Fallback || got.TopicName != "t" || got.BrokerURI != "b" {
		t.Fatalf("expected resolved descriptor, got %+v", got)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestResolveRejectsIncompleteBodies(t *testing.T) {
	cases := map[string]string{
		"not json":    `<html>`,
		"no entry":    `{}`,
		"null entry":  `{"entry":null}`,
		"empty topic": `{"entry":{"eventTopic":"","brokerUri":"b"}}`,
		"missing uri": `{"entry":{"eventTopic":"t"}}`,
		"wrong types": `{"entry":{"eventTopic":1,"brokerUri":"b"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv, calls := descriptorServer(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			r := NewResolver(srv.URL, defaultTopic, defaultBroker, WithBackoff(time.Millisecond, 2))
			got := r.Resolve(context.Background())
			if !got.Fallback || got.TopicName != defaultTopic {
				t.Fatalf("expected fallback, got %+v", got)
			}
			if calls.Load() != 2 {
				t.Fatalf("expected 2 attempts, got %d", calls.Load())
			}
		})
	}
}

func TestResolveIsCached(t *testing.T) {
	srv, calls := descriptorServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"entry":{"eventTopic":"t","brokerUri":"b"}}`))
	})
	r := NewResolver(srv.URL, defaultTopic, defaultBroker)

	first := r.Resolve(context.Background())
	second := r.Resolve(context.Background())
	if first != second {
		t.Fatalf("expected cached descriptor, got %+v then %+v", first, second)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single request, got %d", calls.Load())
	}
}

func TestResolveFallsBackWhenCancelled(t *testing.T) {
	srv, _ := descriptorServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx, cancel := context.WithCancel(context.Background())
	log := logtest.New()
	r := NewResolver(srv.URL, defaultTopic, defaultBroker,
		WithLogger(log),
		WithBackoff(time.Hour, 30),
	)

	go func() {
		for len(log.Levels("error")) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	done := make(chan Descriptor, 1)
	go func() { done <- r.Resolve(ctx) }()

	select {
	case got := <-done:
		if !got.Fallback || got.BrokerURI != defaultBroker {
			t.Fatalf("expected defaults after cancel, got %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resolve did not stop on cancellation")
	}
}

func TestResolveAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv, calls := descriptorServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	r := NewResolver(srv.URL, defaultTopic, defaultBroker,
		WithBackoff(time.Millisecond, 2),
		WithAttemptTimeout(20*time.Millisecond),
	)
	got := r.Resolve(context.Background())
	if !got.Fallback {
		t.Fatalf("expected fallback after timeouts, got %+v", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestFromConfig(t *testing.T) {
	srv, _ := descriptorServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != config.EventsAPIPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"entry":{"eventTopic":"t","brokerUri":"b"}}`))
	})
	cfg := config.Default()
	cfg.GatewayURL = srv.URL + "/"
	got := FromConfig(&cfg).Resolve(context.Background())
	if got.TopicName != "t" {
		t.Fatalf("expected resolved topic, got %+v", got)
	}
}
