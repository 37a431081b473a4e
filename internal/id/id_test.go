package id

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDIsPrefixedUUIDv7(t *testing.T) {
	runID := NewRunID()
	require.True(t, strings.HasPrefix(runID, "run-"))

	parsed, err := uuid.Parse(strings.TrimPrefix(runID, "run-"))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, runID, NewRunID())
}

func TestRunIDContextRoundTrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	assert.Equal(t, "run-1", RunIDFromContext(ctx))
	assert.Equal(t, "", RunIDFromContext(context.Background()))
	assert.Equal(t, context.Background(), WithRunID(context.Background(), ""))
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	assert.Equal(t, "req-9", RequestIDFromContext(ctx))
	assert.True(t, strings.HasPrefix(NewRequestID(), "req-"))
}
