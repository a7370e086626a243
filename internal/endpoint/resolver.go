// Package endpoint discovers the topic and broker the gateway subscribes to.
//
// The repository publishes its event topic descriptor on an OPTIONS endpoint.
// Resolution retries with a fixed backoff and, when the endpoint stays
// unreachable, falls back to the configured defaults so startup never fails
// on discovery.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/drblury/eventgateway/internal/runtime/config"
	"github.com/drblury/eventgateway/internal/runtime/jsoncodec"
	"github.com/drblury/eventgateway/internal/runtime/logging"
	"github.com/drblury/eventgateway/internal/runtime/metrics"
)

// Descriptor names the event topic and the broker that carries it.
type Descriptor struct {
	TopicName string
	BrokerURI string
	// Fallback is true when the defaults were substituted.
	Fallback bool
}

// ResolutionError is one failed lookup.
type ResolutionError struct {
	Attempt int
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("endpoint: resolve attempt %d: %v", e.Attempt, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

var (
	errEntryMissing   = errors.New("response has no entry")
	errTopicMissing   = errors.New("entry has no eventTopic")
	errBrokerMissing  = errors.New("entry has no brokerUri")
	errUnexpectedCode = errors.New("unexpected status code")
)

type descriptorResponse struct {
	Entry *struct {
		EventTopic string `json:"eventTopic"`
		BrokerURI  string `json:"brokerUri"`
	} `json:"entry"`
}

// Resolver looks the descriptor up once and caches the outcome for the
// lifetime of the process.
type Resolver struct {
	endpointURL string
	defaults    Descriptor
	policy      RetryPolicy
	timeout     time.Duration
	client      *http.Client
	logger      logging.ServiceLogger
	metrics     *metrics.Metrics

	once   sync.Once
	result Descriptor
}

// Option customises a Resolver.
type Option func(*Resolver)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

func WithLogger(logger logging.ServiceLogger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithBackoff sets the fixed wait between attempts and the attempt limit.
func WithBackoff(interval time.Duration, maxAttempts int) Option {
	return func(r *Resolver) {
		r.policy.Interval = interval
		r.policy.MaxAttempts = maxAttempts
	}
}

// WithAttemptTimeout bounds a single OPTIONS request.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// NewResolver builds a resolver for endpointURL that substitutes
// defaultTopic and defaultBroker when the lookup fails.
func NewResolver(endpointURL, defaultTopic, defaultBroker string, opts ...Option) *Resolver {
	r := &Resolver{
		endpointURL: endpointURL,
		defaults:    Descriptor{TopicName: defaultTopic, BrokerURI: defaultBroker, Fallback: true},
		policy:      RetryPolicy{Interval: 2 * time.Second, MaxAttempts: 30},
		timeout:     5 * time.Second,
		client:      http.DefaultClient,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromConfig builds a resolver from the subscription and resolver settings.
func FromConfig(cfg *config.Config, opts ...Option) *Resolver {
	base := []Option{
		WithBackoff(cfg.ResolveBackoff, cfg.ResolveMaxAttempts),
		WithAttemptTimeout(cfg.ResolveTimeout),
	}
	return NewResolver(cfg.TopicEndpointURL(), cfg.TopicName, cfg.BrokerURL, append(base, opts...)...)
}

// Resolve returns the descriptor, performing the lookup on first use only.
// It never fails: exhausted retries or a cancelled ctx yield the defaults.
func (r *Resolver) Resolve(ctx context.Context) Descriptor {
	r.once.Do(func() {
		r.result = r.resolve(ctx)
	})
	return r.result
}

func (r *Resolver) resolve(ctx context.Context) Descriptor {
	policy := r.policy
	policy.Notify = func(attempt int, err error) {
		r.logger.Error(fmt.Sprintf(
			"Couldn't get the topic info. Retrying using FixedBackOff [interval=%d, maxAttempts=%d, currentAttempts=%d]",
			policy.Interval.Milliseconds(), policy.MaxAttempts, attempt,
		), err, logging.LogFields{"endpoint": r.endpointURL, "attempt": attempt})
	}

	desc, ok := WithRetry(ctx, policy, r.fetch, r.defaults)
	r.metrics.ResolvedWithFallback(!ok)
	if !ok {
		r.logger.Info(fmt.Sprintf("Couldn't get the topic info after %d tries. Falling back to default values.", policy.MaxAttempts), logging.LogFields{
			"topic":  desc.TopicName,
			"broker": config.RedactURL(desc.BrokerURI),
		})
		return desc
	}
	r.logger.Info("Resolved event topic", logging.LogFields{
		"topic":  desc.TopicName,
		"broker": config.RedactURL(desc.BrokerURI),
	})
	return desc
}

func (r *Resolver) fetch(ctx context.Context, attempt int) (Descriptor, error) {
	r.metrics.ResolveAttempted()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, r.endpointURL, nil)
	if err != nil {
		return Descriptor{}, &ResolutionError{Attempt: attempt, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Descriptor{}, &ResolutionError{Attempt: attempt, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Descriptor{}, &ResolutionError{Attempt: attempt, Err: fmt.Errorf("%w: %d", errUnexpectedCode, resp.StatusCode)}
	}

	var body descriptorResponse
	if err := jsoncodec.Decode(resp.Body, &body); err != nil {
		return Descriptor{}, &ResolutionError{Attempt: attempt, Err: fmt.Errorf("decode descriptor: %w", err)}
	}
	switch {
	case body.Entry == nil:
		err = errEntryMissing
	case body.Entry.EventTopic == "":
		err = errTopicMissing
	case body.Entry.BrokerURI == "":
		err = errBrokerMissing
	}
	if err != nil {
		return Descriptor{}, &ResolutionError{Attempt: attempt, Err: err}
	}

	return Descriptor{TopicName: body.Entry.EventTopic, BrokerURI: body.Entry.BrokerURI}, nil
}
