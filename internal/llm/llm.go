// Package llm is the generation capability boundary: it turns a role-tagged
// prompt into text using a configured provider, with decorators for token
// limits, caching, instrumentation and retries.
package llm

import (
	"context"
	"time"

	"docforge/internal/domain/pipeline"
)

// Request is a single generation call.
type Request struct {
	Role pipeline.Role
	// Unit names the source unit the call is about. Empty for whole-codebase
	// calls such as the architecture overview.
	Unit       string
	System     string
	Prompt     string
	Credential string
}

// Generator produces text for a role-tagged prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// CredentialChecker is implemented by providers that can validate a
// credential without spending a generation call.
type CredentialChecker interface {
	VerifyCredential(ctx context.Context, credential string) error
}

// Config selects and tunes the provider.
type Config struct {
	Provider    string            `mapstructure:"provider" yaml:"provider"` // openai, deepseek, ollama, mock
	Model       string            `mapstructure:"model" yaml:"model"`
	BaseURL     string            `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout     time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Temperature float64           `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`

	// MaxInputTokens rejects prompts above this size (0 = unlimited).
	MaxInputTokens int `mapstructure:"max_input_tokens" yaml:"max_input_tokens"`
	// CacheSize bounds the response cache (0 disables it). The cache lives for
	// the whole process, so repeated runs over the same unit reuse old output.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// VerifyCredential checks the credential once before fan-out.
	VerifyCredential bool `mapstructure:"verify_credential" yaml:"verify_credential"`
}

// DefaultConfig targets the DeepSeek chat API.
func DefaultConfig() Config {
	return Config{
		Provider:       "deepseek",
		Model:          "deepseek-chat",
		BaseURL:        deepseekBaseURL,
		Timeout:        120 * time.Second,
		Temperature:    0.2,
		MaxTokens:      4096,
		MaxInputTokens: 32000,
		MaxRetries:     1,
	}
}
