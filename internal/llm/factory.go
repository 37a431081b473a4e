package llm

import (
	"context"
	"fmt"
	"strings"

	"docforge/internal/logging"
	"docforge/internal/observability"
)

// Client is the decorated generator built from Config.
type Client struct {
	provider string
	gen      Generator
	checker  CredentialChecker
	verify   bool
}

var (
	_ Generator         = (*Client)(nil)
	_ CredentialChecker = (*Client)(nil)
)

// New builds the provider named by config and wraps it, outermost first, in
// the token guard, cache, instrumentation and retry decorators.
func New(config Config, obs *observability.Observability) (*Client, error) {
	provider, err := newProvider(config)
	if err != nil {
		return nil, err
	}
	checker, _ := provider.(CredentialChecker)

	gen := WithRetry(provider, config.MaxRetries, logging.NewComponentLogger("llm-retry"))
	gen = WithInstrumentation(gen, obs)
	gen, err = WithCache(gen, config.CacheSize)
	if err != nil {
		return nil, err
	}
	gen = WithTokenLimit(gen, config.MaxInputTokens)

	return &Client{
		provider: strings.ToLower(config.Provider),
		gen:      gen,
		checker:  checker,
		verify:   config.VerifyCredential,
	}, nil
}

// NewClient wraps an existing generator without decorators. Mainly for tests.
func NewClient(gen Generator) *Client {
	checker, _ := gen.(CredentialChecker)
	return &Client{provider: "custom", gen: gen, checker: checker, verify: checker != nil}
}

// Providers lists the provider names New accepts.
func Providers() []string {
	return []string{"deepseek", "openai", "openai-compatible", "ollama", "mock"}
}

func newProvider(config Config) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "deepseek":
		if config.BaseURL == "" {
			config.BaseURL = deepseekBaseURL
		}
		if config.Model == "" {
			config.Model = "deepseek-chat"
		}
		return NewOpenAIClient(config), nil
	case "openai", "openai-compatible", "":
		if config.Model == "" {
			return nil, fmt.Errorf("llm: model is required for provider %q", config.Provider)
		}
		return NewOpenAIClient(config), nil
	case "ollama":
		if config.Model == "" {
			return nil, fmt.Errorf("llm: model is required for provider %q", config.Provider)
		}
		return NewOllamaClient(config)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", config.Provider)
	}
}

// Provider names the underlying provider.
func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	return c.gen.Generate(ctx, req)
}

// VerifyCredential checks the credential when verification is enabled and
// the provider supports it. Otherwise it is a no-op.
func (c *Client) VerifyCredential(ctx context.Context, credential string) error {
	if !c.verify || c.checker == nil {
		return nil
	}
	return c.checker.VerifyCredential(ctx, credential)
}
