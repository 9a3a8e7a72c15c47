package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryExecutor runs remote calls, retrying transient failures with exponential backoff.
// Each attempt gets its own timeout; running out of it counts as a transient failure.
type RetryExecutor struct {
	config RetryConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetryExecutor(config RetryConfig, logger *zap.Logger) *RetryExecutor {
	return &RetryExecutor{
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Do runs fn until it succeeds, fails with a non-transient error, or MaxRetries retries
// have failed. On exhaustion the last transient error is returned as is.
func (r *RetryExecutor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			r.logger.Debug("Retrying after transient failure",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			if err := r.sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		err := r.attempt(ctx, op, fn)
		if err == nil {
			return nil
		}

		if !IsTransient(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}

	r.logger.Warn("Retries exhausted",
		zap.String("op", op),
		zap.Int("attempts", r.config.MaxRetries+1),
		zap.Error(lastErr))

	return lastErr
}

func (r *RetryExecutor) attempt(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if r.config.AttemptTimeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !IsTransient(err) {
		return NewError(KindTransient, op, fmt.Errorf("attempt timed out after %s: %w", r.config.AttemptTimeout, err))
	}
	return err
}

// backoff returns BaseDelay doubled once per retry already made: 1s, 2s, 4s for a 1s base.
func (r *RetryExecutor) backoff(attempt int) time.Duration {
	return r.config.BaseDelay * time.Duration(1<<(attempt-1))
}

// Retry is Do for operations that return a value.
func Retry[T any](ctx context.Context, r *RetryExecutor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
