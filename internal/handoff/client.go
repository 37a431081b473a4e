package handoff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docforge/internal/domain/pipeline"
	docerrors "docforge/internal/errors"
	"docforge/internal/httpclient"
	"docforge/internal/id"
	"docforge/internal/logging"
	"docforge/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// ClientConfig configures the handoff client.
type ClientConfig struct {
	// Endpoint is the full URL of the consumer's generate operation.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// Timeout bounds each attempt.
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	// MaxResponseBytes bounds the response body (0 = 64MB).
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
}

// DefaultClientConfig targets a consumer on localhost.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:         "http://localhost:8081/generate",
		Timeout:          10 * time.Minute,
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		MaxDelay:         15 * time.Second,
		MaxResponseBytes: 64 << 20,
	}
}

// RetryFunc observes a failed attempt that will be retried after delay.
type RetryFunc func(attempt int, err error, delay time.Duration)

// Client sends generation requests to the code-generation service.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	obs        *observability.Observability
	logger     logging.Logger
}

// NewClient builds a Client. The underlying transport trips a circuit breaker
// on repeated server failures, which the client treats as a transient error.
func NewClient(config ClientConfig, obs *observability.Observability) (*Client, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, errors.New("handoff: endpoint is required")
	}
	defaults := DefaultClientConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = defaults.MaxResponseBytes
	}
	if obs == nil {
		obs = observability.Noop()
	}
	return &Client{
		config:     config,
		httpClient: httpclient.NewWithCircuitBreaker(config.Timeout, "handoff", docerrors.DefaultCircuitBreakerConfig()),
		obs:        obs,
		logger:     logging.NewComponentLogger("handoff-client"),
	}, nil
}

// Send performs the handoff. Transport failures are retried with exponential
// backoff; once attempts run out the error wraps ErrHandoffUnavailable.
// A structured error response is returned on the first attempt as an
// *ErrorResponse, which unwraps to the matching domain error.
func (c *Client) Send(ctx context.Context, req pipeline.GenerationRequest, onRetry RetryFunc) (pipeline.ResultBundle, error) {
	body, err := EncodeRequest(req)
	if err != nil {
		return pipeline.ResultBundle{}, fmt.Errorf("encode request: %w", err)
	}
	logger := logging.FromContext(ctx, c.logger)

	retry := docerrors.RetryConfig{
		MaxAttempts:  c.config.MaxAttempts,
		BaseDelay:    c.config.BaseDelay,
		MaxDelay:     c.config.MaxDelay,
		JitterFactor: 0.1,
	}
	hooks := docerrors.RetryHooks{OnRetry: func(attempt int, err error, delay time.Duration) {
		logger.Warn("Handoff attempt %d/%d failed, retrying in %v: %v", attempt, c.config.MaxAttempts, delay, err)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}}

	bundle, err := docerrors.RetryWithResult(ctx, retry, logger, hooks, func(ctx context.Context, attempt int) (pipeline.ResultBundle, error) {
		return c.attempt(ctx, attempt, body)
	})
	if err == nil {
		logger.Info("Handoff succeeded: %d artifacts, partial=%t", len(bundle.Artifacts), bundle.Partial)
		return bundle, nil
	}

	var structured *ErrorResponse
	if errors.As(err, &structured) {
		return pipeline.ResultBundle{}, structured
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return pipeline.ResultBundle{}, ctxErr
	}
	return pipeline.ResultBundle{}, fmt.Errorf("%w: %w", pipeline.ErrHandoffUnavailable, err)
}

func (c *Client) attempt(ctx context.Context, attempt int, body []byte) (result pipeline.ResultBundle, err error) {
	ctx, span := c.obs.Tracer.StartSpan(ctx, observability.SpanHandoffAttempt, attribute.Int(observability.AttrAttempt, attempt))
	start := time.Now()
	defer func() {
		c.obs.Metrics.RecordHandoffAttempt(ctx, attemptOutcome(err), time.Since(start))
		observability.EndSpan(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return pipeline.ResultBundle{}, &docerrors.PermanentError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if runID := id.RunIDFromContext(ctx); runID != "" {
		httpReq.Header.Set("X-Run-ID", runID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if docerrors.IsTransient(err) {
			return pipeline.ResultBundle{}, err
		}
		return pipeline.ResultBundle{}, &docerrors.PermanentError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, c.config.MaxResponseBytes)
	if err != nil {
		if httpclient.IsResponseTooLarge(err) {
			return pipeline.ResultBundle{}, &docerrors.PermanentError{Err: err}
		}
		return pipeline.ResultBundle{}, &docerrors.TransientError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		bundle, err := DecodeResponse(respBody)
		if err != nil {
			return pipeline.ResultBundle{}, &docerrors.PermanentError{Err: err}
		}
		return bundle, nil
	}

	if structured, ok := decodeErrorResponse(respBody); ok {
		return pipeline.ResultBundle{}, &docerrors.PermanentError{Err: structured, StatusCode: resp.StatusCode}
	}
	return pipeline.ResultBundle{}, docerrors.ClassifyHTTPStatus(resp.StatusCode,
		fmt.Errorf("consumer returned status %d: %s", resp.StatusCode, truncate(string(respBody), 256)))
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case docerrors.IsTransient(err):
		return "transient"
	default:
		var structured *ErrorResponse
		if errors.As(err, &structured) {
			return "rejected"
		}
		return "failed"
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
