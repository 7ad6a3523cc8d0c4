package dispatch

import (
	"context"
	"encoding/json"

	"github.com/flowd-dev/flowd/features/model"
	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/tools"
	"github.com/flowd-dev/flowd/tools/builtin"
)

// dispatchAgent serializes the gathered input into the user prompt and issues
// a chat completion through the gateway.
func (d *Dispatcher) dispatchAgent(ctx context.Context, node workflow.Node, input any, _ *tools.Context) (any, error) {
	if d.gateway == nil {
		return nil, floerr.New(floerr.KindProviderUnconfigured, "no model gateway configured").WithNode(node.ID)
	}
	data, err := node.AgentData()
	if err != nil {
		return nil, err
	}
	prompt, err := promptText(input)
	if err != nil {
		return nil, wrapNode(err, node.ID)
	}
	resp, err := d.gateway.Chat(ctx, model.Request{
		Provider:     data.Provider,
		Model:        data.Model,
		SystemPrompt: data.SystemPrompt,
		Prompt:       prompt,
		Temperature:  data.Temperature,
		MaxTokens:    data.MaxTokens,
	})
	if err != nil {
		return nil, wrapNode(err, node.ID)
	}
	return resp.Text, nil
}

// dispatchPrompt renders the template with {{input}} and the input-record
// fields named in variables. Missing variables render as the empty string.
func dispatchPrompt(node workflow.Node, input any) (any, error) {
	data, err := node.PromptData()
	if err != nil {
		return nil, err
	}
	vars := map[string]any{}
	if record, ok := input.(map[string]any); ok {
		for _, name := range data.Variables {
			if v, ok := record[name]; ok {
				vars[name] = v
			}
		}
	}
	return builtin.RenderTemplate(data.PromptTemplate, input, vars), nil
}

// promptText renders the gathered input for a user prompt: strings pass
// through, everything else serializes to JSON.
func promptText(input any) (string, error) {
	if s, ok := input.(string); ok {
		return s, nil
	}
	doc, err := json.Marshal(input)
	if err != nil {
		return "", floerr.Wrap(floerr.KindExpressionError, "serialize prompt input", err)
	}
	return string(doc), nil
}
