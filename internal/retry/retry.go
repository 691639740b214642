// File: internal/retry/retry.go
// Package retry provides a small bounded-retry helper for operations that
// fail transiently, with a fixed initial delay and multiplicative backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options bounds a retry loop.
type Options struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Delay is the wait before the second attempt.
	Delay time.Duration
	// Backoff multiplies the delay after every failed attempt. Values
	// below 1 are treated as 1 (constant delay).
	Backoff float64
}

// DefaultOptions mirror the pipeline's navigation retry bounds.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, Delay: time.Second, Backoff: 2.0}
}

// Do runs op until it succeeds, the attempts are exhausted, or ctx is done.
// The last error is returned on exhaustion; ctx cancellation surfaces as
// ctx.Err() wrapped with the attempt count.
func Do(ctx context.Context, logger *zap.Logger, opts Options, op func(ctx context.Context) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff < 1 {
		opts.Backoff = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := opts.Delay
	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry aborted before attempt %d: %w", attempt, err)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == opts.MaxAttempts {
			break
		}

		logger.Debug("Operation failed, retrying.",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", opts.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted after attempt %d: %w", attempt, err)
		}
		delay = time.Duration(float64(delay) * opts.Backoff)
	}

	return fmt.Errorf("all %d attempts failed: %w", opts.MaxAttempts, lastErr)
}

// sleep blocks for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
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
