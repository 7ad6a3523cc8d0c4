package builtin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const jsonSchema = `{
	"type": "object",
	"properties": {
		"operation": {"type": "string", "enum": ["parse", "stringify", "query", "merge"]},
		"input": {},
		"query": {"type": "string"},
		"with": {"type": "object"},
		"pretty": {"type": "boolean"}
	},
	"required": ["operation"]
}`

func jsonHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "json",
		Name:        "JSON Operations",
		Description: "Parses, serializes, queries, and merges JSON values.",
		Category:    "data",
		InputSchema: []byte(jsonSchema),
		Invoke:      invokeJSON,
	}
}

func invokeJSON(_ context.Context, input map[string]any, _ *tools.Context) (any, error) {
	op := stringField(input, "operation")
	value := input["input"]

	switch op {
	case "parse":
		raw, ok := value.(string)
		if !ok {
			return value, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, floerr.Wrap(floerr.KindExpressionError, "parse json", err)
		}
		return decoded, nil

	case "stringify":
		var (
			encoded []byte
			err     error
		)
		if pretty, _ := input["pretty"].(bool); pretty {
			encoded, err = json.MarshalIndent(value, "", "  ")
		} else {
			encoded, err = json.Marshal(value)
		}
		if err != nil {
			return nil, floerr.Wrap(floerr.KindExpressionError, "stringify json", err)
		}
		return string(encoded), nil

	case "query":
		query := strings.TrimSpace(stringField(input, "query"))
		if query == "" {
			return value, nil
		}
		env := map[string]any{"input": value}
		program, err := expr.Compile(query, expr.Env(env))
		if err != nil {
			return nil, floerr.Wrap(floerr.KindExpressionError, "compile query", err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, floerr.Wrap(floerr.KindExpressionError, "evaluate query", err)
		}
		return out, nil

	case "merge":
		base, ok := value.(map[string]any)
		if !ok {
			return nil, floerr.New(floerr.KindExpressionError, "json merge: input is not an object")
		}
		merged := make(map[string]any, len(base))
		for k, v := range base {
			merged[k] = v
		}
		if overlay, ok := input["with"].(map[string]any); ok {
			for k, v := range overlay {
				merged[k] = v
			}
		}
		return merged, nil

	default:
		return nil, floerr.Newf(floerr.KindMissingNodeData, "json: unsupported operation %q", op)
	}
}
