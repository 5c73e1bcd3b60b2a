// Package respond provides interfaces and utilities for villager response
// generation providers.
//
// It defines the Generator interface that all provider implementations must
// satisfy, along with message types, generation options, and the prompt
// assembly that turns an agent's memory context into a chat request.
package respond

import (
	"context"
	"fmt"
	"strings"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

// Generator is the contract every response provider (OpenAI, Ollama)
// satisfies.
type Generator interface {
	// Generate produces a villager reply from the assembled chat messages,
	// honoring any sampling options. The returned string is the reply text.
	Generate(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// Close releases provider resources.
	Close() error
}

// Message is one entry in a chat request, with Role being "system", "user",
// or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions holds tunable sampling parameters. Temperature raises
// randomness, MaxTokens bounds the reply length, and TopP sets the nucleus
// sampling mass.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// GenerateOption mutates GenerateOptions.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = temp }
}

// WithMaxTokens bounds the reply length in tokens.
func WithMaxTokens(max int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = max }
}

// WithTopP sets the nucleus sampling mass.
func WithTopP(topP float64) GenerateOption {
	return func(o *GenerateOptions) { o.TopP = topP }
}

// ApplyGenerateOptions folds the given options over the defaults
// (Temperature 0.8, MaxTokens 256, TopP 1.0). Provider implementations call
// this before building their request.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	resolved := &GenerateOptions{
		Temperature: 0.8,
		MaxTokens:   256,
		TopP:        1.0,
	}
	for _, apply := range opts {
		apply(resolved)
	}
	return resolved
}

// BuildConversationMessages assembles the chat request for one conversation
// turn.
//
// The system message establishes the villager persona, the context section
// carries the retrieved memories as prior exchanges, and the final user
// message is the player's current input.
//
// Parameters:
//   - agentID: The agent identifier, used as the villager's name
//   - actorName: Display name of the player speaking
//   - input: The player's current input text
//   - contextRecords: Retrieved memories, most relevant first
//
// Returns the assembled message list.
func BuildConversationMessages(agentID, actorName, input string, contextRecords []*core.MemoryRecord) []Message {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"You are %s, a villager. Reply in character, in one or two short sentences.",
		agentID))

	if len(contextRecords) > 0 {
		sb.WriteString("\n\nThings you remember from past conversations:")
		for _, r := range contextRecords {
			sb.WriteString(fmt.Sprintf("\n- %s said %q and you replied %q (day %d)",
				r.ActorName, r.Input, r.Response, r.GameDay))
		}
	}

	messages := []Message{
		{Role: "system", Content: sb.String()},
	}

	if actorName != "" {
		input = fmt.Sprintf("%s says: %s", actorName, input)
	}
	messages = append(messages, Message{Role: "user", Content: input})

	return messages
}
