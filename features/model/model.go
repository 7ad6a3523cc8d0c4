// Package model defines the uniform chat contract over model provider
// backends. Provider adapters live in subpackages; the gateway subpackage
// selects among them at call time.
package model

import "context"

type (
	// Request is one chat completion request.
	Request struct {
		// Provider selects the backend (openai, anthropic, groq, ollama).
		// Empty means the configured default.
		Provider string
		// Model is the provider-specific model identifier. Empty means the
		// configured default.
		Model string
		// SystemPrompt is the optional system instruction.
		SystemPrompt string
		// Prompt is the user message.
		Prompt string
		// Temperature is the sampling temperature in [0, 2].
		Temperature float64
		// MaxTokens bounds the completion length. Zero means the backend default.
		MaxTokens int
	}

	// Response is the model's completion.
	Response struct {
		// Text is the completion text.
		Text string
		// Model echoes the model that produced the completion.
		Model string
	}

	// Backend is one provider adapter.
	Backend interface {
		// Chat performs a single chat completion.
		Chat(ctx context.Context, req Request) (*Response, error)
	}
)
