package builtin

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const fileSchema = `{
	"type": "object",
	"properties": {
		"operation": {"type": "string", "enum": ["read", "write", "append", "list", "delete", "exists"]},
		"path": {"type": "string", "minLength": 1},
		"content": {"type": "string"}
	},
	"required": ["operation", "path"]
}`

func fileHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "file",
		Name:        "File System",
		Description: "Reads, writes, appends, lists, and deletes files.",
		Category:    "system",
		InputSchema: []byte(fileSchema),
		Invoke:      invokeFile,
	}
}

func invokeFile(_ context.Context, input map[string]any, _ *tools.Context) (any, error) {
	op := stringField(input, "operation")
	path := stringField(input, "path")

	switch op {
	case "read":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, floerr.Wrapf(floerr.KindStorage, err, "read %s", path)
		}
		return string(content), nil

	case "write":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, floerr.Wrapf(floerr.KindStorage, err, "create directory for %s", path)
		}
		if err := os.WriteFile(path, []byte(stringField(input, "content")), 0o644); err != nil {
			return nil, floerr.Wrapf(floerr.KindStorage, err, "write %s", path)
		}
		return map[string]any{"path": path, "written": true}, nil

	case "append":
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, floerr.Wrapf(floerr.KindStorage, err, "open %s", path)
		}
		defer f.Close()
		if _, err := f.WriteString(stringField(input, "content")); err != nil {
			return nil, floerr.Wrapf(floerr.KindStorage, err, "append %s", path)
		}
		return map[string]any{"path": path, "written": true}, nil

	case "list":
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, floerr.Wrapf(floerr.KindStorage, err, "list %s", path)
		}
		names := make([]any, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Slice(names, func(i, j int) bool { return names[i].(string) < names[j].(string) })
		return names, nil

	case "delete":
		if err := os.Remove(path); err != nil {
			return nil, floerr.Wrapf(floerr.KindStorage, err, "delete %s", path)
		}
		return map[string]any{"path": path, "deleted": true}, nil

	case "exists":
		_, err := os.Stat(path)
		return map[string]any{"path": path, "exists": err == nil}, nil

	default:
		return nil, floerr.Newf(floerr.KindMissingNodeData, "file: unsupported operation %q", op)
	}
}
