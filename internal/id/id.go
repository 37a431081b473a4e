// Package id generates and propagates pipeline run identifiers.
package id

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type contextKey string

const (
	runKey     contextKey = "docforge_run_id"
	requestKey contextKey = "docforge_request_id"
)

// NewRunID returns a time-ordered identifier for one pipeline invocation.
func NewRunID() string {
	return newIdentifier("run")
}

// NewRequestID returns an identifier for one HTTP request.
func NewRequestID() string {
	return newIdentifier("req")
}

func newIdentifier(prefix string) string {
	body, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	}
	return fmt.Sprintf("%s-%s", prefix, body.String())
}

// WithRunID stores the current run identifier on the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runKey, runID)
}

// RunIDFromContext extracts the run identifier, or "" when absent.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(runKey).(string); ok {
		return v
	}
	return ""
}

// WithRequestID stores an inbound request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, requestID)
}

// RequestIDFromContext extracts the request identifier, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestKey).(string); ok {
		return v
	}
	return ""
}
