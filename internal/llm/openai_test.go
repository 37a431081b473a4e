package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docforge/internal/domain/pipeline"
	docerrors "docforge/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientGenerateSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "value", r.Header.Get("X-Custom"))

		var payload chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "test-model", payload.Model)
		require.Len(t, payload.Messages, 2)
		assert.Equal(t, "system", payload.Messages[0].Role)
		assert.Equal(t, "document A.java", payload.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"# A"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "test-model", BaseURL: server.URL + "/", Headers: map[string]string{"X-Custom": "value"}})
	out, err := client.Generate(context.Background(), Request{
		Role:       pipeline.RoleDocumentation,
		Unit:       "A.java",
		System:     "you document code",
		Prompt:     "document A.java",
		Credential: "sk-test",
	})
	require.NoError(t, err)
	assert.Equal(t, "# A", out)
}

func TestOpenAIClientMapsAuthFailureToInvalidCredential(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "m", BaseURL: server.URL})
	_, err := client.Generate(context.Background(), Request{Role: pipeline.RoleBoilerplate, Prompt: "x", Credential: "bad"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrInvalidCredential)
	assert.True(t, docerrors.IsPermanent(err))
	assert.Contains(t, err.Error(), "bad key")
}

func TestOpenAIClientClassifiesServerErrorsAsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "m", BaseURL: server.URL})
	_, err := client.Generate(context.Background(), Request{Role: pipeline.RoleTest, Prompt: "x", Credential: "k"})
	require.Error(t, err)
	assert.True(t, docerrors.IsTransient(err))
	assert.Equal(t, http.StatusServiceUnavailable, docerrors.StatusCode(err))
}

func TestOpenAIClientRejectsEmptyCompletion(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "m", BaseURL: server.URL})
	_, err := client.Generate(context.Background(), Request{Role: pipeline.RoleTest, Prompt: "x", Credential: "k"})
	require.Error(t, err)
}

func TestOpenAIClientVerifyCredential(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "m", BaseURL: server.URL}).(CredentialChecker)
	require.NoError(t, client.VerifyCredential(context.Background(), "good"))
	assert.ErrorIs(t, client.VerifyCredential(context.Background(), "bad"), pipeline.ErrInvalidCredential)
	assert.ErrorIs(t, client.VerifyCredential(context.Background(), " "), pipeline.ErrInvalidCredential)
}
