package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

// Framing markers wrap the wrapper script's result on stdout so it can be
// separated from anything the user code prints.
const (
	ResultFrameBegin = "---FLOWD-RESULT-BEGIN---"
	ResultFrameEnd   = "---FLOWD-RESULT-END---"
)

const pythonDefaultTimeout = 60 * time.Second

const pythonSchema = `{
	"type": "object",
	"properties": {
		"code": {"type": "string", "minLength": 1},
		"input": {},
		"timeoutSeconds": {"type": "number", "minimum": 1}
	},
	"required": ["code"]
}`

func pythonHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "python",
		Name:        "Python Runner",
		Description: "Runs Python code in a subprocess with the input bound as a JSON value.",
		Category:    "system",
		InputSchema: []byte(pythonSchema),
		Invoke:      invokePython,
	}
}

// invokePython writes a wrapper script that reads the input as JSON on stdin,
// executes the user code with `input_data` bound, and prints the `result`
// binding between the framing markers. The framed payload is parsed back into
// the tool result; everything outside the frame is returned as plain stdout.
func invokePython(ctx context.Context, input map[string]any, _ *tools.Context) (any, error) {
	code := stringField(input, "code")

	timeout := pythonDefaultTimeout
	if secs, ok := input["timeoutSeconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	script := buildPythonWrapper(code)
	dir, err := os.MkdirTemp("", "flowd-python-")
	if err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "create scratch directory", err)
	}
	defer os.RemoveAll(dir)
	scriptPath := filepath.Join(dir, "main.py")
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "write wrapper script", err)
	}

	stdin, err := json.Marshal(input["input"])
	if err != nil {
		return nil, floerr.Wrap(floerr.KindExpressionError, "encode input", err)
	}

	cmd := exec.CommandContext(ctx, "python3", scriptPath)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, floerr.Wrap(floerr.KindCancelled, "python aborted", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, floerr.Newf(floerr.KindExpressionError, "python: %s", msg)
	}

	result, rest, found := ExtractFramedResult(stdout.String())
	out := map[string]any{"stdout": rest}
	if found {
		var decoded any
		if err := json.Unmarshal([]byte(result), &decoded); err != nil {
			return nil, floerr.Wrap(floerr.KindExpressionError, "decode python result", err)
		}
		out["result"] = decoded
	}
	return out, nil
}

// buildPythonWrapper embeds the user code in a script that binds stdin JSON as
// input_data and frames the final `result` value on stdout.
func buildPythonWrapper(code string) string {
	indented := "    " + strings.ReplaceAll(code, "\n", "\n    ")
	return fmt.Sprintf(`import json
import sys

input_data = json.load(sys.stdin)
result = None

def __run(input_data):
    result = None
%s
    return locals().get("result")

result = __run(input_data)
print(%q)
print(json.dumps(result))
print(%q)
`, indented, ResultFrameBegin, ResultFrameEnd)
}

// ExtractFramedResult splits captured stdout into the framed result payload
// and the remaining output. found is false when no complete frame is present.
func ExtractFramedResult(stdout string) (result, rest string, found bool) {
	begin := strings.Index(stdout, ResultFrameBegin)
	if begin < 0 {
		return "", stdout, false
	}
	tail := stdout[begin+len(ResultFrameBegin):]
	end := strings.Index(tail, ResultFrameEnd)
	if end < 0 {
		return "", stdout, false
	}
	result = strings.TrimSpace(tail[:end])
	rest = strings.TrimSpace(stdout[:begin] + tail[end+len(ResultFrameEnd):])
	return result, rest, true
}
