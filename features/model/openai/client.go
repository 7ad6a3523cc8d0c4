// Package openai adapts the OpenAI chat completions API to the model.Backend
// contract. The same adapter serves Groq, whose API is OpenAI-compatible, by
// pointing the client at the Groq base URL.
package openai

import (
	"context"
	"errors"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/flowd-dev/flowd/features/model"
	"github.com/flowd-dev/flowd/runtime/floerr"
)

// GroqBaseURL is the OpenAI-compatible endpoint served by Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Client is the OpenAI-compatible backend.
type Client struct {
	oc   *sdk.Client
	name string
}

// New constructs a Client against the OpenAI API.
func New(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, floerr.New(floerr.KindProviderUnconfigured, "openai: api key is required")
	}
	return &Client{oc: sdk.NewClient(apiKey), name: "openai"}, nil
}

// NewGroq constructs a Client against the Groq endpoint.
func NewGroq(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, floerr.New(floerr.KindProviderUnconfigured, "groq: api key is required")
	}
	cfg := sdk.DefaultConfig(apiKey)
	cfg.BaseURL = GroqBaseURL
	return &Client{oc: sdk.NewClientWithConfig(cfg), name: "groq"}, nil
}

// Chat implements model.Backend.
func (c *Client) Chat(ctx context.Context, req model.Request) (*model.Response, error) {
	if req.Model == "" {
		return nil, floerr.Newf(floerr.KindProviderError, "%s: model identifier is required", c.name)
	}
	var messages []sdk.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, sdk.ChatCompletionMessage{
			Role:    sdk.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, sdk.ChatCompletionMessage{
		Role:    sdk.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := sdk.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := c.oc.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, floerr.Wrapf(floerr.KindProviderTimeout, err, "%s: request timed out", c.name)
		}
		return nil, floerr.Wrapf(floerr.KindProviderError, err, "%s chat completion", c.name)
	}
	if len(resp.Choices) == 0 {
		return nil, floerr.Newf(floerr.KindProviderError, "%s: empty completion", c.name)
	}
	return &model.Response{Text: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}
