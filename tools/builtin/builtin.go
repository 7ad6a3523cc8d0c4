// Package builtin provides the ten built-in tools registered at process
// startup: browser, scraper, http, file, python, code-runner, github, shell,
// json, and text.
package builtin

import (
	"fmt"

	"github.com/flowd-dev/flowd/tools"
)

// Register adds every built-in tool to the registry.
func Register(r *tools.Registry) error {
	for _, h := range []*tools.Handle{
		browserHandle(),
		scraperHandle(),
		httpHandle(),
		fileHandle(),
		pythonHandle(),
		codeRunnerHandle(),
		githubHandle(),
		shellHandle(),
		jsonHandle(),
		textHandle(),
	} {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// stringField reads an optional string field from the invoke input.
func stringField(input map[string]any, key string) string {
	v, ok := input[key].(string)
	if !ok {
		return ""
	}
	return v
}

// stringify renders a value for interpolation into text contexts.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
