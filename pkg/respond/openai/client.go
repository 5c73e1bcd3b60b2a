// Package openai provides an OpenAI-backed response generator.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/respond"
)

const defaultModel = "gpt-4"

// Client generates villager replies through the OpenAI chat completion API.
type Client struct {
	api   *openai.Client
	model string
}

// Config configures the OpenAI generator. APIKey is required; Model defaults
// to "gpt-4" and BaseURL to the official endpoint, which makes the client
// usable against OpenAI-compatible gateways as well.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new OpenAI response generator, rejecting configs
// without an API key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, core.NewEngineError("openai.NewClient",
			fmt.Errorf("%w: api key is required", core.ErrInvalidConfig))
	}

	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Client{
		api:   openai.NewClientWithConfig(sdkCfg),
		model: model,
	}, nil
}

// Generate produces a villager reply from the assembled chat messages.
// Failures and empty completions are reported wrapping
// core.ErrGenerationFailed so callers can branch on the sentinel.
func (c *Client) Generate(ctx context.Context, messages []respond.Message, opts ...respond.GenerateOption) (string, error) {
	options := respond.ApplyGenerateOptions(opts)

	prompt := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		prompt = append(prompt, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    prompt,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", core.ErrGenerationFailed)
	}

	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op; the SDK client needs no teardown.
func (c *Client) Close() error {
	return nil
}
