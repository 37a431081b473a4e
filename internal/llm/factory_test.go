package llm

import (
	"context"
	"testing"

	"docforge/internal/domain/pipeline"
	"docforge/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMockProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "mock"
	client, err := New(cfg, observability.Noop())
	require.NoError(t, err)
	assert.Equal(t, "mock", client.Provider())

	out, err := client.Generate(context.Background(), Request{Role: pipeline.RoleBoilerplate, Unit: "src/Foo.java", Prompt: "x"})
	require.NoError(t, err)
	assert.Contains(t, out, "public class Foo")

	// Mock cannot check credentials, so verification is a no-op.
	assert.NoError(t, client.VerifyCredential(context.Background(), "anything"))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "carrier-pigeon"}, nil)
	require.Error(t, err)
}

func TestNewRequiresModelForOpenAI(t *testing.T) {
	_, err := New(Config{Provider: "openai"}, nil)
	require.Error(t, err)
}

func TestNewDeepSeekDefaults(t *testing.T) {
	client, err := New(Config{Provider: "DeepSeek"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", client.Provider())
}

func TestMockRejectsUnknownRole(t *testing.T) {
	_, err := NewMockClient().Generate(context.Background(), Request{Role: "poetry"})
	require.Error(t, err)
}
