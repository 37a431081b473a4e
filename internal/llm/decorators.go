package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	docerrors "docforge/internal/errors"
	"docforge/internal/logging"
	"docforge/internal/observability"
	"docforge/internal/token"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
)

// ErrPromptTooLarge is returned when a prompt exceeds the configured token
// limit. Oversized units are failed rather than truncated.
var ErrPromptTooLarge = errors.New("prompt exceeds token limit")

// WithTokenLimit rejects prompts whose token count exceeds maxTokens.
func WithTokenLimit(next Generator, maxTokens int) Generator {
	if maxTokens <= 0 {
		return next
	}
	return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		if n := token.Count(req.System) + token.Count(req.Prompt); n > maxTokens {
			return "", &docerrors.PermanentError{Err: fmt.Errorf("%w: %d tokens > %d", ErrPromptTooLarge, n, maxTokens)}
		}
		return next.Generate(ctx, req)
	})
}

// WithCache memoizes successful generations in an LRU keyed by a digest of
// the request. Failures are never cached.
func WithCache(next Generator, size int) (Generator, error) {
	if size <= 0 {
		return next, nil
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create generation cache: %w", err)
	}
	return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		key := cacheKey(req)
		if cached, ok := cache.Get(key); ok {
			return cached, nil
		}
		out, err := next.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		cache.Add(key, out)
		return out, nil
	}), nil
}

func cacheKey(req Request) string {
	h := sha256.New()
	for _, part := range []string{string(req.Role), req.Unit, req.System, req.Prompt, req.Credential} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WithInstrumentation records a span and latency metrics around each call.
func WithInstrumentation(next Generator, obs *observability.Observability) Generator {
	if obs == nil {
		return next
	}
	return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		ctx, span := obs.Tracer.StartSpan(ctx, observability.SpanGenerate,
			attribute.String(observability.AttrRole, string(req.Role)),
			attribute.String(observability.AttrUnit, req.Unit),
		)
		start := time.Now()
		out, err := next.Generate(ctx, req)

		status := "ok"
		if err != nil {
			status = "failed"
		}
		obs.Metrics.RecordGeneration(ctx, string(req.Role), status, time.Since(start))
		observability.EndSpan(span, err)
		return out, err
	})
}

// WithRetry retries transient provider failures up to maxRetries extra times.
func WithRetry(next Generator, maxRetries int, logger logging.Logger) Generator {
	if maxRetries <= 0 {
		return next
	}
	config := docerrors.DefaultRetryConfig()
	config.MaxAttempts = maxRetries + 1
	return WithRetryConfig(next, config, logger)
}

// WithRetryConfig is WithRetry with explicit backoff settings.
func WithRetryConfig(next Generator, config docerrors.RetryConfig, logger logging.Logger) Generator {
	logger = logging.OrNop(logger)
	return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		return docerrors.RetryWithResult(ctx, config, logger, docerrors.RetryHooks{
			OnRetry: func(attempt int, err error, delay time.Duration) {
				logger.Warn("Generation attempt %d for role=%s unit=%s failed, retrying in %v: %v",
					attempt, req.Role, req.Unit, delay, err)
			},
		}, func(ctx context.Context, _ int) (string, error) {
			return next.Generate(ctx, req)
		})
	})
}
