// Package tools defines the tool capability catalog. A Handle describes one
// tool: identity, declared input schema, and an invoke operation. The Registry
// maps tool ids to handles, is populated once at process startup with the
// builtin set, and is read-only during execution.
package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowd-dev/flowd/config"
	"github.com/flowd-dev/flowd/runtime/floerr"
)

type (
	// InvokeFunc realizes one tool invocation. Input is the merged tool
	// configuration and upstream value; the returned value is the node output.
	InvokeFunc func(ctx context.Context, input map[string]any, tc *Context) (any, error)

	// Handle is one registered tool capability.
	Handle struct {
		// ID is the tool identifier referenced by tool nodes.
		ID string `json:"id"`
		// Name is the display name.
		Name string `json:"name"`
		// Description explains what the tool does.
		Description string `json:"description"`
		// Category groups tools in listings (web, system, data, ai).
		Category string `json:"category"`
		// InputSchema is the JSON schema document describing the invoke input.
		InputSchema json.RawMessage `json:"inputSchema,omitempty"`
		// Invoke runs the tool.
		Invoke InvokeFunc `json:"-"`

		compiled *jsonschema.Schema
	}

	// Context carries per-invocation execution state into a tool. It is
	// snapshotted at execution start: tools never observe configuration swaps
	// that happen mid-flight.
	Context struct {
		// ExecutionID identifies the running execution.
		ExecutionID string
		// WorkflowID identifies the owning workflow.
		WorkflowID string
		// NodeID identifies the node being dispatched.
		NodeID string
		// Variables is the merged workflow-variables-plus-input map.
		Variables map[string]any
		// Config is the process configuration snapshot, including credentials.
		Config *config.Config
		// Emit routes an event into the runner's stream. May be nil.
		Emit func(event string, data map[string]any)
	}

	// Registry is the process-wide tool catalog.
	Registry struct {
		mu      sync.RWMutex
		handles map[string]*Handle
	}
)

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register adds a handle. The input schema, when present, is compiled eagerly
// so malformed schemas fail at startup rather than at invoke time.
func (r *Registry) Register(h *Handle) error {
	if h.ID == "" {
		return floerr.New(floerr.KindUnknownTool, "tool id is required")
	}
	if h.Invoke == nil {
		return floerr.Newf(floerr.KindUnknownTool, "tool %s has no invoke", h.ID)
	}
	if len(h.InputSchema) > 0 {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(h.InputSchema)))
		if err != nil {
			return floerr.Wrapf(floerr.KindUnknownTool, err, "tool %s: parse input schema", h.ID)
		}
		compiler := jsonschema.NewCompiler()
		url := "mem://tools/" + h.ID + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			return floerr.Wrapf(floerr.KindUnknownTool, err, "tool %s: add schema resource", h.ID)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return floerr.Wrapf(floerr.KindUnknownTool, err, "tool %s: compile schema", h.ID)
		}
		h.compiled = compiled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.ID] = h
	return nil
}

// Get resolves a handle by id.
func (r *Registry) Get(id string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	if !ok {
		return nil, floerr.Newf(floerr.KindUnknownTool, "unknown tool %q", id)
	}
	return h, nil
}

// List returns all handles ordered by id.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Invoke resolves the tool, validates the input against its declared schema,
// and runs it.
func (r *Registry) Invoke(ctx context.Context, id string, input map[string]any, tc *Context) (any, error) {
	h, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if h.compiled != nil {
		if err := validate(h.compiled, input); err != nil {
			return nil, floerr.Wrapf(floerr.KindExpressionError, err, "tool %s: invalid input", id)
		}
	}
	return h.Invoke(ctx, input, tc)
}

// validate round-trips the input through JSON so the schema sees canonical
// decoded values regardless of the Go types the dispatcher assembled.
func validate(schema *jsonschema.Schema, input map[string]any) error {
	doc, err := json.Marshal(input)
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(doc)))
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}
