// Package ollama provides an Ollama-backed response generator for local or
// self-hosted models.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/respond"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.1:70b"

	// Large local models can be slow to first token.
	defaultTimeout = 120 * time.Second
)

// Client generates villager replies through an Ollama /api/chat endpoint.
type Client struct {
	httpc   *http.Client
	apiKey  string
	model   string
	baseURL string
}

// Config configures the Ollama generator. All fields are optional: APIKey is
// only needed for proxied deployments, Model defaults to "llama3.1:70b",
// BaseURL to "http://localhost:11434", and HTTPClient to a client with a
// 120s timeout.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// chatRequest is the non-streaming Ollama chat payload. Ollama names its
// token limit num_predict rather than max_tokens.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	TopP        float64 `json:"top_p"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// NewClient creates a new Ollama response generator.
func NewClient(cfg *Config) (*Client, error) {
	c := &Client{
		httpc:   cfg.HTTPClient,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: defaultTimeout}
	}
	return c, nil
}

// Generate produces a villager reply from the assembled chat messages.
//
// Parameters:
//   - ctx: Context for controlling the request lifecycle
//   - messages: Chat messages (system persona, memory context, player input)
//   - opts: Optional generation parameters (temperature, max_tokens, top_p)
//
// Returns the generated reply text, or an error wrapping
// core.ErrGenerationFailed if the service is unreachable or replies empty.
func (c *Client) Generate(ctx context.Context, messages []respond.Message, opts ...respond.GenerateOption) (string, error) {
	options := respond.ApplyGenerateOptions(opts)

	payload := chatRequest{
		Model:    c.model,
		Messages: make([]chatMessage, 0, len(messages)),
		Options: chatOptions{
			Temperature: options.Temperature,
			NumPredict:  options.MaxTokens,
			TopP:        options.TopP,
		},
	}
	for _, msg := range messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", core.ErrGenerationFailed, resp.StatusCode, string(detail))
	}

	var reply chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if reply.Message.Content == "" {
		return "", fmt.Errorf("%w: empty response from Ollama", core.ErrGenerationFailed)
	}

	return reply.Message.Content, nil
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (c *Client) Close() error {
	return nil
}
