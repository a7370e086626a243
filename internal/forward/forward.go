// Package forward hands folder events to the function sink.
package forward

import (
	"context"
	"fmt"
	"strings"

	"github.com/drblury/eventgateway/internal/event"
	"github.com/drblury/eventgateway/internal/runtime/config"
	"github.com/drblury/eventgateway/internal/runtime/logging"
)

// Version is reported in the AWS user agent.
var Version = "dev"

// Forwarder delivers a serialized event to its sink. Delivery is attempted
// once; callers log failures and move on.
type Forwarder interface {
	Forward(ctx context.Context, payload []byte, ev event.Event) (Ack, error)
}

// Ack describes an accepted delivery.
type Ack struct {
	Target     string
	StatusCode int
	RequestID  string
}

// ForwardError is a rejected or failed delivery.
type ForwardError struct {
	Target     string
	EventID    string
	StatusCode int
	Err        error
}

func (e *ForwardError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("forward: %s rejected event %q with status %d: %v", e.Target, e.EventID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("forward: event %q to %s: %v", e.EventID, e.Target, e.Err)
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}

// New builds the forwarder selected by cfg.ForwardSink.
func New(ctx context.Context, cfg *config.Config, logger logging.ServiceLogger) (Forwarder, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	switch strings.ToLower(cfg.ForwardSink) {
	case config.SinkLambda, "":
		client, err := NewLambdaClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewLambdaForwarder(client, cfg.FunctionName), nil
	case config.SinkHTTP:
		return NewHTTPForwarder(cfg.FunctionURL, nil, logger)
	default:
		return nil, fmt.Errorf("forward: unknown sink %q", cfg.ForwardSink)
	}
}
