package http

import (
	"fmt"
	"net/http"
	"time"

	"docforge/internal/id"
	"docforge/internal/logging"
	"docforge/internal/observability"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ObservabilityMiddleware tags the request context with request and run IDs,
// wraps it in a span, records the request metric and logs latency at debug
// level.
func ObservabilityMiddleware(obs *observability.Observability, latencyLogger logging.Logger) gin.HandlerFunc {
	latencyLogger = logging.OrNop(latencyLogger)
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx := c.Request.Context()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = id.NewRequestID()
		}
		ctx = id.WithRequestID(ctx, requestID)
		c.Header("X-Request-ID", requestID)
		// The producer propagates its run ID so both sides log under it.
		if runID := c.GetHeader("X-Run-ID"); runID != "" {
			ctx = id.WithRunID(ctx, runID)
		}

		ctx, span := obs.Tracer.StartSpan(ctx, observability.SpanHTTPServer,
			attribute.String("http.route", route),
			attribute.String("http.method", c.Request.Method),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		var err error
		if status >= http.StatusInternalServerError {
			err = fmt.Errorf("http status %d", status)
		}
		observability.EndSpan(span, err)

		latency := time.Since(start)
		obs.Metrics.RecordHTTPServerRequest(ctx, c.Request.Method, route, status, latency)
		latencyLogger.Debug("route=%s method=%s status=%d latency_ms=%.2f bytes=%d",
			route, c.Request.Method, status, float64(latency.Microseconds())/1000.0, c.Writer.Size())
	}
}

// RecoveryMiddleware turns handler panics into a 500 and logs them.
func RecoveryMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{Code: "internal", Error: "internal server error"})
	})
}

// ErrorBody is the error shape of the producer service.
type ErrorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
