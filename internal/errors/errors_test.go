package errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError(errors.New("x"), "")))
	assert.False(t, IsTransient(NewPermanentError(errors.New("x"), "")))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}))
	assert.True(t, IsTransient(syscall.ECONNRESET))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}

func TestClassifyHTTPStatus(t *testing.T) {
	base := errors.New("status")
	for _, code := range []int{429, 500, 502, 503, 504} {
		err := ClassifyHTTPStatus(code, base)
		assert.True(t, IsTransient(err), "code %d", code)
		assert.Equal(t, code, StatusCode(err))
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		err := ClassifyHTTPStatus(code, base)
		assert.True(t, IsPermanent(err), "code %d", code)
		assert.Equal(t, code, StatusCode(err))
	}
	assert.Equal(t, 0, StatusCode(base))
}

func TestRetryWithResultSucceedsAfterTransient(t *testing.T) {
	var retries []int
	hooks := RetryHooks{OnRetry: func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}}

	got, err := RetryWithResult(context.Background(), fastRetryConfig(3), nil, hooks, func(ctx context.Context, attempt int) (string, error) {
		if attempt < 3 {
			return "", ClassifyHTTPStatus(http.StatusServiceUnavailable, errors.New("busy"))
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryWithResultStopsOnPermanent(t *testing.T) {
	calls := 0
	perm := NewPermanentError(errors.New("bad credential"), "")

	_, err := RetryWithResult(context.Background(), fastRetryConfig(5), nil, RetryHooks{}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, perm
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, perm, err)
}

func TestRetryWithResultExhausts(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(3), nil, RetryHooks{}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("down"), "")
	})

	assert.Equal(t, 3, calls)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestRetryWithResultHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithResult(ctx, fastRetryConfig(3), nil, RetryHooks{}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, nil
	})

	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, calculateBackoff(5, cfg))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("handoff", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	cb.now = func() time.Time { return now }

	cb.Mark(errors.New("1"))
	require.NoError(t, cb.Allow())
	cb.Mark(errors.New("2"))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Allow()
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsTransient(err))

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.Mark(nil)
	assert.Equal(t, StateClosed, cb.State())
}
