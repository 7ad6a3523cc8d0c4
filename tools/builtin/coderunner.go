package builtin

import (
	"context"
	"time"

	"github.com/expr-lang/expr"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const codeRunnerTimeout = 5 * time.Second

const codeRunnerSchema = `{
	"type": "object",
	"properties": {
		"language": {"type": "string", "enum": ["javascript", "typescript", "python"]},
		"code": {"type": "string", "minLength": 1},
		"input": {}
	},
	"required": ["code"]
}`

func codeRunnerHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "code-runner",
		Name:        "Code Runner",
		Description: "Evaluates user code: JS-family code in the sandboxed expression engine, Python in a subprocess.",
		Category:    "system",
		InputSchema: []byte(codeRunnerSchema),
		Invoke:      invokeCodeRunner,
	}
}

// invokeCodeRunner routes by language. JS-family code is restricted to the
// whitelisted expression grammar: no network, filesystem, or timer access
// exists in the sandbox, and the sole binding is the input value.
func invokeCodeRunner(ctx context.Context, input map[string]any, tc *tools.Context) (any, error) {
	language := stringField(input, "language")
	if language == "python" {
		return invokePython(ctx, input, tc)
	}

	code := stringField(input, "code")
	env := map[string]any{
		"input": input["input"],
		"ctx":   ctx,
	}
	program, err := expr.Compile(code, expr.Env(env), expr.WithContext("ctx"))
	if err != nil {
		return nil, floerr.Wrap(floerr.KindExpressionError, "compile code", err)
	}
	evalCtx, cancel := context.WithTimeout(ctx, codeRunnerTimeout)
	defer cancel()
	env["ctx"] = evalCtx
	out, err := expr.Run(program, env)
	if err != nil {
		if evalCtx.Err() != nil {
			return nil, floerr.Wrap(floerr.KindCancelled, "code evaluation timed out", evalCtx.Err())
		}
		return nil, floerr.Wrap(floerr.KindExpressionError, "evaluate code", err)
	}
	return out, nil
}
