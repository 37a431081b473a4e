package handoff

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"docforge/internal/domain/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, endpoint string, attempts int) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Endpoint:    endpoint,
		Timeout:     2 * time.Second,
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

func sampleRequest() pipeline.GenerationRequest {
	return pipeline.GenerationRequest{Credential: "sk-test", Records: okRecords("A.java"), GenerateTests: false}
}

func TestClientSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		req, err := DecodeRequest(body)
		assert.NoError(t, err)
		assert.Equal(t, "sk-test", req.Credential)
		_, _ = w.Write([]byte(`{"partial":false,"artifacts":[{"unit_name":"A.java","kind":"boilerplate","body":"class A {}","status":"ok"}]}`))
	}))
	defer srv.Close()

	result, err := testClient(t, srv.URL, 3).Send(context.Background(), sampleRequest(), nil)
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 1)
	assert.False(t, result.Partial)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"partial":false,"artifacts":[]}`))
	}))
	defer srv.Close()

	var retries []int
	_, err := testClient(t, srv.URL, 3).Send(context.Background(), sampleRequest(), func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{1, 2}, retries)
}

func TestClientSurfacesUnavailableAfterExhaustion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 3).Send(context.Background(), sampleRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrHandoffUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientSurfacesUnavailableWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, err := testClient(t, endpoint, 2).Send(context.Background(), sampleRequest(), nil)
	assert.ErrorIs(t, err, pipeline.ErrHandoffUnavailable)
}

func TestClientDoesNotRetryStructuredErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_kind":"InvalidCredential","message":"invalid credential"}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 5).Send(context.Background(), sampleRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrInvalidCredential)
	assert.NotErrorIs(t, err, pipeline.ErrHandoffUnavailable)

	var structured *ErrorResponse
	require.True(t, errors.As(err, &structured))
	assert.Equal(t, KindInvalidCredential, structured.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientDoesNotRetryInternalErrorResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error_kind":"Internal","message":"code generation failed"}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 4).Send(context.Background(), sampleRequest(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrHandoffUnavailable)

	var structured *ErrorResponse
	require.True(t, errors.As(err, &structured))
	assert.Equal(t, KindInternal, structured.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientDoesNotRetryUnstructuredClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 4).Send(context.Background(), sampleRequest(), nil)
	assert.ErrorIs(t, err, pipeline.ErrHandoffUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientPerAttemptTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond, MaxAttempts: 2, BaseDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.Send(context.Background(), sampleRequest(), nil)
	assert.ErrorIs(t, err, pipeline.ErrHandoffUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientHonorsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(t, "http://127.0.0.1:1/generate", 3).Send(ctx, sampleRequest(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, pipeline.ErrHandoffUnavailable)
}

func TestClientAgainstServer(t *testing.T) {
	gen := &countingLLM{}
	server := newTestServer(t, gen)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		status, resp := server.Handle(r.Context(), body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 3)

	result, err := client.Send(context.Background(), pipeline.GenerationRequest{
		Credential: "sk-test", Records: okRecords("A.java", "B.java", "C.java"), GenerateTests: true,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, result.Artifacts, 6)
	assert.False(t, result.Partial)

	before := gen.calls.Load()
	_, err = client.Send(context.Background(), pipeline.GenerationRequest{Records: okRecords("A.java")}, nil)
	assert.ErrorIs(t, err, pipeline.ErrInvalidCredential)
	assert.Equal(t, before, gen.calls.Load())
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil)
	require.Error(t, err)
}
