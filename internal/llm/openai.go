package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docforge/internal/domain/pipeline"
	docerrors "docforge/internal/errors"
	"docforge/internal/httpclient"
	"docforge/internal/logging"
)

const (
	openAIBaseURL   = "https://api.openai.com/v1"
	deepseekBaseURL = "https://api.deepseek.com/v1"

	maxResponseBytes = 8 << 20
)

// openaiClient speaks the OpenAI-compatible chat completions API. The
// credential travels with each request rather than living on the client.
type openaiClient struct {
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	headers     map[string]string
	httpClient  *http.Client
	logger      logging.Logger
}

var (
	_ Generator         = (*openaiClient)(nil)
	_ CredentialChecker = (*openaiClient)(nil)
)

// NewOpenAIClient builds a chat completions client for any OpenAI-compatible
// endpoint.
func NewOpenAIClient(config Config) Generator {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &openaiClient{
		model:       config.Model,
		baseURL:     baseURL,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		headers:     config.Headers,
		httpClient:  httpclient.New(timeout),
		logger:      logging.NewComponentLogger("llm-openai"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *openaiClient) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(httpReq, req.Credential)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("POST %s/chat/completions role=%s unit=%s model=%s", c.baseURL, req.Role, req.Unit, c.model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", mapHTTPError(resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("completion returned empty content")
	}
	c.logger.Debug("Completion for role=%s unit=%s: prompt_tokens=%d completion_tokens=%d",
		req.Role, req.Unit, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	return content, nil
}

// VerifyCredential lists models with the credential. Authentication failures
// map to ErrInvalidCredential; other failures are returned as is.
func (c *openaiClient) VerifyCredential(ctx context.Context, credential string) error {
	if strings.TrimSpace(credential) == "" {
		return pipeline.ErrInvalidCredential
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.setHeaders(httpReq, credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := httpclient.ReadAllWithLimit(resp.Body, 64<<10)
	return mapHTTPError(resp.StatusCode, body)
}

func (c *openaiClient) setHeaders(req *http.Request, credential string) {
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

// mapHTTPError converts an error response into a classified error.
// Authentication failures become ErrInvalidCredential.
func mapHTTPError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}
	if len(message) > 512 {
		message = message[:512] + "..."
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &docerrors.PermanentError{
			Err:        fmt.Errorf("%w: status %d: %s", pipeline.ErrInvalidCredential, status, message),
			StatusCode: status,
		}
	}
	return docerrors.ClassifyHTTPStatus(status, fmt.Errorf("status %d: %s", status, message))
}

func wrapRequestError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if docerrors.IsTransient(err) {
		return &docerrors.TransientError{Err: err}
	}
	return fmt.Errorf("request failed: %w", err)
}
