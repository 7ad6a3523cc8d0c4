// Package anthropic adapts the Anthropic Messages API to the model.Backend
// contract using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowd-dev/flowd/features/model"
	"github.com/flowd-dev/flowd/runtime/floerr"
)

// defaultMaxTokens applies when the request does not bound the completion.
// The Messages API requires a positive max_tokens.
const defaultMaxTokens = 1024

// Client is the Anthropic backend.
type Client struct {
	ac sdk.Client
}

// New constructs a Client from an API key.
func New(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, floerr.New(floerr.KindProviderUnconfigured, "anthropic: api key is required")
	}
	return &Client{ac: sdk.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Chat implements model.Backend.
func (c *Client) Chat(ctx context.Context, req model.Request) (*model.Response, error) {
	if req.Model == "" {
		return nil, floerr.New(floerr.KindProviderError, "anthropic: model identifier is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := c.ac.Messages.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, floerr.Wrap(floerr.KindProviderTimeout, "anthropic: request timed out", err)
		}
		return nil, floerr.Wrap(floerr.KindProviderError, "anthropic messages.new", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return &model.Response{Text: b.String(), Model: string(msg.Model)}, nil
}
