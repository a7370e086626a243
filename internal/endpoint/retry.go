package endpoint

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy is a fixed interval retry bounded by attempt count.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	// Notify, when set, is called after every failed attempt, including the last.
	Notify func(attempt int, err error)
}

// Operation performs one attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// WithRetry runs op until it succeeds or the policy is exhausted. On
// exhaustion or context cancellation it returns fallback and false; it never
// returns an error.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, op Operation[T], fallback T) (T, bool) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	value, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx, attempt)
		if err != nil && policy.Notify != nil {
			policy.Notify(attempt, err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Interval)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return fallback, false
	}
	return value, true
}
