// Package retry wraps provider queries with bounded attempts and
// pluggable backoff. Every cloud call in this codebase goes through it.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts bounds total tries per call.
	DefaultMaxAttempts = 3
	// DefaultBackoffBase is the unit delay for the linear backoff.
	DefaultBackoffBase = 2 * time.Second
)

// BackoffFunc returns the delay after a failed attempt. Attempts are
// numbered from 1.
type BackoffFunc func(attempt int) time.Duration

// Linear returns a backoff whose delay scales with the attempt number:
// (attempt+1) * base after each failure.
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt+1) * base
	}
}

// CallError reports a call that exhausted all attempts.
type CallError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Options control a single retried call.
type Options struct {
	MaxAttempts    int
	Backoff        BackoffFunc
	AttemptTimeout time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithMaxAttempts overrides the attempt bound.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithBackoff overrides the backoff function.
func WithBackoff(fn BackoffFunc) Option {
	return func(o *Options) { o.Backoff = fn }
}

// WithAttemptTimeout bounds each individual attempt. A timed-out
// attempt counts as a failure and proceeds to backoff or exhaustion.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Options) { o.AttemptTimeout = d }
}

// funcBackOff adapts a BackoffFunc to the backoff.BackOff interface so
// the retry loop itself stays library-driven.
type funcBackOff struct {
	fn      BackoffFunc
	attempt int
}

func (b *funcBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.fn(b.attempt)
}

func (b *funcBackOff) Reset() { b.attempt = 0 }

func buildOptions(opts []Option) Options {
	o := Options{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Linear(DefaultBackoffBase),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	return o
}

// Do runs fn with bounded retries. On exhaustion it returns a
// *CallError carrying the last underlying error.
func Do(ctx context.Context, op string, fn func(context.Context) error, opts ...Option) error {
	o := buildOptions(opts)

	var attempts int
	var lastErr error

	operation := func() error {
		attempts++
		attemptCtx := ctx
		if o.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, o.AttemptTimeout)
			defer cancel()
		}
		if err := fn(attemptCtx); err != nil {
			lastErr = err
			return err
		}
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&funcBackOff{fn: o.Backoff}, uint64(o.MaxAttempts-1)),
		ctx,
	)

	if err := backoff.Retry(operation, b); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return &CallError{Op: op, Attempts: attempts, Err: lastErr}
	}
	return nil
}

// Value runs fn with bounded retries and returns its result.
func Value[T any](ctx context.Context, op string, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	var result T
	err := Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
