package dispatch

import (
	"context"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/tools"
	"github.com/flowd-dev/flowd/tools/builtin"
)

// dispatchTool resolves the node's tool and invokes it with the configured
// parameters merged over {"input": <gathered>}.
func (d *Dispatcher) dispatchTool(ctx context.Context, node workflow.Node, input any, tc *tools.Context) (any, error) {
	if d.registry == nil {
		return nil, floerr.New(floerr.KindUnknownTool, "no tool registry configured").WithNode(node.ID)
	}
	data, err := node.ToolData()
	if err != nil {
		return nil, err
	}
	invokeInput := map[string]any{"input": input}
	for k, v := range data.ToolConfig {
		invokeInput[k] = v
	}
	out, err := d.registry.Invoke(ctx, data.ToolID, invokeInput, tc)
	if err != nil {
		return nil, wrapNode(err, node.ID)
	}
	return out, nil
}

// dispatchHTTP interpolates {{name}} placeholders in the URL and string body
// from input-record fields, then delegates the request to the http tool so
// the request path exists exactly once.
func (d *Dispatcher) dispatchHTTP(ctx context.Context, node workflow.Node, input any, tc *tools.Context) (any, error) {
	if d.registry == nil {
		return nil, floerr.New(floerr.KindUnknownTool, "no tool registry configured").WithNode(node.ID)
	}
	data, err := node.HTTPData()
	if err != nil {
		return nil, err
	}
	vars, _ := input.(map[string]any)

	invokeInput := map[string]any{
		"url": builtin.RenderTemplate(data.URL, input, vars),
	}
	if data.Method != "" {
		invokeInput["method"] = data.Method
	}
	if len(data.Headers) > 0 {
		headers := make(map[string]any, len(data.Headers))
		for k, v := range data.Headers {
			headers[k] = v
		}
		invokeInput["headers"] = headers
	}
	switch body := data.Body.(type) {
	case nil:
	case string:
		invokeInput["body"] = builtin.RenderTemplate(body, input, vars)
	default:
		invokeInput["body"] = body
	}

	out, err := d.registry.Invoke(ctx, "http", invokeInput, tc)
	if err != nil {
		return nil, wrapNode(err, node.ID)
	}
	if result, ok := out.(map[string]any); ok {
		return result["body"], nil
	}
	return out, nil
}

// dispatchCode evaluates user code. JS-family languages run in the sandboxed
// expression engine; Python delegates to the python tool, whose framed stdout
// carries the result binding.
func (d *Dispatcher) dispatchCode(ctx context.Context, node workflow.Node, input any, tc *tools.Context) (any, error) {
	data, err := node.CodeData()
	if err != nil {
		return nil, err
	}

	switch data.Language {
	case "python":
		if d.registry == nil {
			return nil, floerr.New(floerr.KindUnknownTool, "no tool registry configured").WithNode(node.ID)
		}
		out, err := d.registry.Invoke(ctx, "python", map[string]any{
			"code":  data.Code,
			"input": input,
		}, tc)
		if err != nil {
			return nil, wrapNode(err, node.ID)
		}
		if result, ok := out.(map[string]any); ok {
			if v, ok := result["result"]; ok {
				return v, nil
			}
			return result["stdout"], nil
		}
		return out, nil

	case "", "javascript", "typescript":
		out, err := evalExpr(ctx, data.Code, input)
		if err != nil {
			return nil, wrapNode(err, node.ID)
		}
		return out, nil

	default:
		return nil, floerr.Newf(floerr.KindMissingNodeData, "unsupported code language %q", data.Language).WithNode(node.ID)
	}
}

// dispatchSensor delegates to the registered sensor tool. Sensor semantics
// are opaque to the runtime.
func (d *Dispatcher) dispatchSensor(ctx context.Context, node workflow.Node, input any, tc *tools.Context) (any, error) {
	data, err := node.SensorData()
	if err != nil {
		return nil, err
	}
	if data.SensorID == "" {
		return nil, floerr.New(floerr.KindMissingNodeData, "sensor node requires sensorId").WithNode(node.ID)
	}
	if d.registry == nil {
		return nil, floerr.New(floerr.KindUnknownTool, "no tool registry configured").WithNode(node.ID)
	}
	out, err := d.registry.Invoke(ctx, data.SensorID, map[string]any{"input": input}, tc)
	if err != nil {
		return nil, wrapNode(err, node.ID)
	}
	return out, nil
}
