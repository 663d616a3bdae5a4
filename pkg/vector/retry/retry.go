// Package retry provides the fixed-delay retry executor every vector driver
// wraps its remote calls in.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultMaxRetries is the default number of attempts per operation.
	DefaultMaxRetries = 3

	// DefaultDelay is the default pause between two attempts.
	DefaultDelay = time.Second
)

// Config holds configuration for an Executor.
type Config struct {
	// MaxRetries is the total number of attempts made per operation,
	// including the first one. Defaults to DefaultMaxRetries if <= 0.
	MaxRetries int

	// Delay is the fixed pause between attempts. It does not grow and has no
	// jitter. Defaults to DefaultDelay if <= 0, unless NoDelay is set.
	Delay time.Duration

	// NoDelay retries immediately. Delay is ignored.
	NoDelay bool
}

// Executor runs operations with bounded retries and a fixed delay.
// All errors are retried the same way unless wrapped with Permanent: the
// executor does not try to tell transient failures from permanent ones.
// An Executor holds no mutable state and is safe for concurrent use.
type Executor struct {
	maxRetries int
	delay      time.Duration
	logger     *slog.Logger
}

// New creates an Executor, filling zero values in c with defaults.
func New(c Config, logger *slog.Logger) *Executor {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	delay := c.Delay
	switch {
	case c.NoDelay:
		delay = 0
	case delay <= 0:
		delay = DefaultDelay
	}

	return &Executor{
		maxRetries: maxRetries,
		delay:      delay,
		logger:     logger,
	}
}

// MaxRetries returns the number of attempts made per operation.
func (e *Executor) MaxRetries() int {
	return e.maxRetries
}

// Delay returns the pause between attempts.
func (e *Executor) Delay() time.Duration {
	return e.delay
}

// Do runs fn until it succeeds or the attempts are exhausted, returning the
// last error. op names the operation in log output.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := Value(ctx, e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			e.logger.Error("operation failed with a permanent error",
				"op", op,
				"attempt", attempt,
				"error", perm.err,
			)
			return zero, perm.err
		}

		if attempt == e.maxRetries {
			break
		}

		e.logger.Warn("operation attempt failed, retrying",
			"op", op,
			"attempt", attempt,
			"retry_in", e.delay,
			"error", err,
		)

		timer := time.NewTimer(e.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w (last error: %w)", op, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	e.logger.Error("all operation attempts failed",
		"op", op,
		"attempts", e.maxRetries,
		"error", lastErr,
	)

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, e.maxRetries, lastErr)
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. The executor returns the
// unwrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
