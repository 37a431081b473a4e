package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"docforge/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // Total attempts including the first (minimum 1)
	BaseDelay    time.Duration // Base delay for exponential backoff
	MaxDelay     time.Duration // Maximum delay between retries
	JitterFactor float64       // Jitter factor for randomization (0.25 = ±25%)
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.25,
	}
}

// RetryHooks observes a retry loop. All fields are optional.
type RetryHooks struct {
	// OnRetry runs after a transient failure, before sleeping for delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// RetryWithResult executes fn with exponential backoff. Only transient errors
// are retried; a permanent error is returned as is on the attempt it occurs.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, logger logging.Logger, hooks RetryHooks, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	logger = logging.OrNop(logger)
	var zeroValue T
	var lastErr error

	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			logger.Debug("Context cancelled, stopping retries")
			return zeroValue, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("Retry succeeded after %d attempts", attempt)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("Attempt %d/%d failed: %v", attempt, maxAttempts, err)

		if !IsTransient(err) {
			return zeroValue, err
		}
		if attempt == maxAttempts {
			logger.Warn("Max retries (%d) exhausted", maxAttempts)
			break
		}

		delay := calculateBackoff(attempt-1, config)
		if hooks.OnRetry != nil {
			hooks.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zeroValue, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return zeroValue, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// calculateBackoff calculates exponential backoff with jitter: base * 2^attempt,
// capped at MaxDelay.
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(config.BaseDelay) * multiplier)

	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterFactor > 0 {
		jitter := float64(delay) * config.JitterFactor
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

		if delay < 0 {
			delay = config.BaseDelay
		}
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return delay
}
