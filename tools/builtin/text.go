package builtin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const textSchema = `{
	"type": "object",
	"properties": {
		"operation": {"type": "string", "enum": ["upper", "lower", "trim", "split", "join", "replace", "template"]},
		"input": {},
		"separator": {"type": "string"},
		"search": {"type": "string"},
		"replacement": {"type": "string"},
		"template": {"type": "string"},
		"variables": {"type": "object"}
	},
	"required": ["operation"]
}`

func textHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "text",
		Name:        "Text Operations",
		Description: "Case conversion, trimming, splitting, joining, replacement, and template rendering.",
		Category:    "data",
		InputSchema: []byte(textSchema),
		Invoke:      invokeText,
	}
}

func invokeText(_ context.Context, input map[string]any, _ *tools.Context) (any, error) {
	op := stringField(input, "operation")
	text := stringify(input["input"])

	switch op {
	case "upper":
		return strings.ToUpper(text), nil
	case "lower":
		return strings.ToLower(text), nil
	case "trim":
		return strings.TrimSpace(text), nil

	case "split":
		sep := stringField(input, "separator")
		if sep == "" {
			sep = "\n"
		}
		parts := strings.Split(text, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil

	case "join":
		sep := stringField(input, "separator")
		items, ok := input["input"].([]any)
		if !ok {
			return text, nil
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, sep), nil

	case "replace":
		return strings.ReplaceAll(text, stringField(input, "search"), stringField(input, "replacement")), nil

	case "template":
		return RenderTemplate(stringField(input, "template"), input["input"], anyMap(input["variables"])), nil

	default:
		return nil, floerr.Newf(floerr.KindMissingNodeData, "text: unsupported operation %q", op)
	}
}

func anyMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// RenderTemplate substitutes {{input}} with the stringified input and
// {{name}} with the named field of vars. Unresolved placeholders render as
// the empty string.
func RenderTemplate(template string, input any, vars map[string]any) string {
	var b strings.Builder
	for {
		open := strings.Index(template, "{{")
		if open < 0 {
			b.WriteString(template)
			return b.String()
		}
		end := strings.Index(template[open:], "}}")
		if end < 0 {
			b.WriteString(template)
			return b.String()
		}
		b.WriteString(template[:open])
		name := strings.TrimSpace(template[open+2 : open+end])
		switch {
		case name == "input":
			b.WriteString(stringifyTemplateValue(input))
		default:
			if v, ok := vars[name]; ok {
				b.WriteString(stringifyTemplateValue(v))
			}
		}
		template = template[open+end+2:]
	}
}

// stringifyTemplateValue renders scalars plainly and structured values as
// JSON.
func stringifyTemplateValue(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64:
		return stringify(v)
	default:
		if doc, err := json.Marshal(v); err == nil {
			return string(doc)
		}
		return stringify(v)
	}
}
