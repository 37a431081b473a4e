package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docforge/internal/domain/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClientGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "llama3", payload["model"])
		assert.Equal(t, false, payload["stream"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"hello world"},"done":true,"done_reason":"stop"}` + "\n"))
	}))
	defer server.Close()

	client, err := NewOllamaClient(Config{Model: "llama3", BaseURL: server.URL + "/api"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), Request{Role: pipeline.RoleDocumentation, Unit: "A.java", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}
