package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"docforge/internal/domain/pipeline"
	docerrors "docforge/internal/errors"
	"docforge/internal/httpclient"
	"docforge/internal/logging"

	ollama "github.com/ollama/ollama/api"
)

// ollamaClient generates against a local Ollama server. Ollama has no notion
// of a bearer credential, so the request credential is only checked for
// presence upstream.
type ollamaClient struct {
	model       string
	temperature float64
	maxTokens   int
	client      *ollama.Client
	logger      logging.Logger
}

var _ Generator = (*ollamaClient)(nil)

// NewOllamaClient builds an Ollama provider. An empty BaseURL falls back to
// OLLAMA_HOST via the Ollama client's environment lookup.
func NewOllamaClient(config Config) (Generator, error) {
	var client *ollama.Client
	if config.BaseURL == "" {
		c, err := ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("could not create ollama client: %w", err)
		}
		client = c
	} else {
		base, err := url.Parse(strings.TrimSuffix(strings.TrimRight(config.BaseURL, "/"), "/api"))
		if err != nil {
			return nil, fmt.Errorf("parse ollama base url: %w", err)
		}
		client = ollama.NewClient(base, httpclient.New(config.Timeout))
	}

	return &ollamaClient{
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		client:      client,
		logger:      logging.NewComponentLogger("llm-ollama"),
	}, nil
}

func (c *ollamaClient) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]ollama.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: req.Prompt})

	options := map[string]any{"temperature": c.temperature}
	if c.maxTokens > 0 {
		options["num_predict"] = c.maxTokens
	}
	stream := false
	chatReq := &ollama.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var builder strings.Builder
	err := c.client.Chat(ctx, chatReq, func(resp ollama.ChatResponse) error {
		builder.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", classifyOllamaError(err)
	}

	content := builder.String()
	if strings.TrimSpace(content) == "" {
		return "", errors.New("ollama returned empty content")
	}
	c.logger.Debug("Ollama completion for role=%s unit=%s: %d bytes", req.Role, req.Unit, len(content))
	return content, nil
}

func classifyOllamaError(err error) error {
	var statusErr ollama.StatusError
	if errors.As(err, &statusErr) {
		wrapped := fmt.Errorf("ollama chat failed: %w", err)
		if statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden {
			wrapped = fmt.Errorf("%w: %v", pipeline.ErrInvalidCredential, err)
		}
		return docerrors.ClassifyHTTPStatus(statusErr.StatusCode, wrapped)
	}
	return wrapRequestError(fmt.Errorf("ollama chat failed: %w", err))
}
