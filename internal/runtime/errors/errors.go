package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired     = sterrors.New("eventgateway: gateway service is required")
	ErrHandlerRequired     = sterrors.New("eventgateway: handler is required")
	ErrHandlerNameRequired = sterrors.New("eventgateway: handler name is required")
	ErrSubscriberRequired  = sterrors.New("eventgateway: subscriber is required")
	ErrTopicRequired       = sterrors.New("eventgateway: topic is required")
	ErrConfigRequired      = sterrors.New("eventgateway: configuration is required")
	ErrLoggerRequired      = sterrors.New("eventgateway: logger is required")
	ErrForwarderRequired   = sterrors.New("eventgateway: forwarder is required")
	ErrPipelineRequired    = sterrors.New("eventgateway: pipeline is required")
	ErrRegistryFrozen      = sterrors.New("eventgateway: handler registry is frozen")
)

// ConfigValidationError wraps the joined validation failures of a Config so
// callers can tell them apart from transport or startup errors.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("eventgateway: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}
