package builtin

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const shellDefaultTimeout = 60 * time.Second

const shellSchema = `{
	"type": "object",
	"properties": {
		"command": {"type": "string", "minLength": 1},
		"cwd": {"type": "string"},
		"timeoutSeconds": {"type": "number", "minimum": 1}
	},
	"required": ["command"]
}`

func shellHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "shell",
		Name:        "Shell Command",
		Description: "Runs a shell command and captures stdout, stderr, and the exit code.",
		Category:    "system",
		InputSchema: []byte(shellSchema),
		Invoke:      invokeShell,
	}
}

func invokeShell(ctx context.Context, input map[string]any, _ *tools.Context) (any, error) {
	command := stringField(input, "command")

	timeout := shellDefaultTimeout
	if secs, ok := input["timeoutSeconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if cwd := stringField(input, "cwd"); cwd != "" {
		cmd.Dir = cwd
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return nil, floerr.Wrap(floerr.KindCancelled, "command aborted", ctx.Err())
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return nil, floerr.Wrapf(floerr.KindExpressionError, err, "shell: run command")
		}
	}
	return map[string]any{
		"stdout":   stdout.String(),
		"stderr":   stderr.String(),
		"exitCode": exitCode,
	}, nil
}
