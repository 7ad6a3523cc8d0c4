// Package ollama adapts a local Ollama server to the model.Backend contract
// through its /api/chat endpoint. Ollama requires no credential.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowd-dev/flowd/features/model"
	"github.com/flowd-dev/flowd/runtime/floerr"
)

const defaultTimeout = 120 * time.Second

type (
	// Client is the Ollama backend.
	Client struct {
		host   string
		client *http.Client
	}

	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatRequest struct {
		Model    string         `json:"model"`
		Messages []chatMessage  `json:"messages"`
		Stream   bool           `json:"stream"`
		Options  map[string]any `json:"options,omitempty"`
	}

	chatResponse struct {
		Model   string      `json:"model"`
		Message chatMessage `json:"message"`
	}
)

// New constructs a Client against the given Ollama host URL.
func New(host string) *Client {
	return &Client{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Chat implements model.Backend.
func (c *Client) Chat(ctx context.Context, req model.Request) (*model.Response, error) {
	if req.Model == "" {
		return nil, floerr.New(floerr.KindProviderError, "ollama: model identifier is required")
	}
	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{Model: req.Model, Messages: messages}
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		body.Options = options
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, floerr.Wrap(floerr.KindProviderError, "ollama: encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(encoded))
	if err != nil {
		return nil, floerr.Wrap(floerr.KindProviderError, "ollama: build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, floerr.Wrap(floerr.KindProviderTimeout, "ollama: request timed out", err)
		}
		return nil, floerr.Wrap(floerr.KindProviderError, "ollama: chat request", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, floerr.Wrap(floerr.KindProviderError, "ollama: read response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, floerr.Newf(floerr.KindProviderError, "ollama: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	var decoded chatResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, floerr.Wrap(floerr.KindProviderError, "ollama: decode response", err)
	}
	return &model.Response{Text: decoded.Message.Content, Model: decoded.Model}, nil
}
