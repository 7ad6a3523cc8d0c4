// Package store defines durable persistence for workflows, executions,
// templates, and log lines. The Store is the sole authority on persisted
// execution status: the engine writes, subscribers read.
//
// Contracts: every update is durably committed before the call returns.
// Mutations to distinct executions proceed independently; mutations to the
// same execution are serialized by the implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowd-dev/flowd/runtime/execution"
	"github.com/flowd-dev/flowd/runtime/workflow"
)

// ErrNotFound indicates the addressed record does not exist.
var ErrNotFound = errors.New("store: not found")

type (
	// Store is the durable persistence contract. Implementations live in the
	// inmem and mongo subpackages.
	Store interface {
		// CreateWorkflow persists a new workflow. The id must not exist.
		CreateWorkflow(ctx context.Context, w *workflow.Workflow) error
		// UpdateWorkflow applies a partial update and advances the modification
		// timestamp. Node and edge lists are overwritten atomically.
		UpdateWorkflow(ctx context.Context, id string, upd WorkflowUpdate) (*workflow.Workflow, error)
		// DeleteWorkflow removes a workflow.
		DeleteWorkflow(ctx context.Context, id string) error
		// GetWorkflow loads a workflow by id.
		GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
		// ListWorkflows returns all workflows ordered by descending
		// modification time.
		ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error)

		// CreateExecution persists a new execution record.
		CreateExecution(ctx context.Context, e *execution.Execution) error
		// UpdateExecution applies a partial update to an execution.
		UpdateExecution(ctx context.Context, id string, upd ExecutionUpdate) (*execution.Execution, error)
		// GetExecution loads an execution by id, including its log lines.
		GetExecution(ctx context.Context, id string) (*execution.Execution, error)
		// ListExecutions returns executions, optionally filtered by workflow,
		// ordered by descending start time.
		ListExecutions(ctx context.Context, workflowID string) ([]*execution.Execution, error)

		// UpdateExecutionNodeState transitions one node's state within an
		// execution. The read-modify-write is atomic with respect to concurrent
		// updates to the same execution, and transitions that would reverse the
		// monotonic node lifecycle are rejected.
		UpdateExecutionNodeState(ctx context.Context, executionID, nodeID string, status execution.NodeStatus, output any, errMsg string) error
		// AppendLog appends one line to an execution's log.
		AppendLog(ctx context.Context, executionID, nodeID string, level execution.LogLevel, message string, data map[string]any) error

		// CreateTemplate persists a workflow template.
		CreateTemplate(ctx context.Context, t *Template) error
		// GetTemplate loads a template by id.
		GetTemplate(ctx context.Context, id string) (*Template, error)
		// ListTemplates returns templates, optionally filtered by category.
		ListTemplates(ctx context.Context, category string) ([]*Template, error)
		// DeleteTemplate removes a template.
		DeleteTemplate(ctx context.Context, id string) error
	}

	// WorkflowUpdate is a partial workflow update. Nil fields are unchanged.
	WorkflowUpdate struct {
		Name        *string
		Description *string
		Nodes       []workflow.Node
		Edges       []workflow.Edge
		Variables   map[string]any
		Metadata    map[string]any
	}

	// ExecutionUpdate is a partial execution update. Nil fields are unchanged;
	// Output is applied only when OutputSet is true so a nil output can be
	// written explicitly.
	ExecutionUpdate struct {
		Status      *execution.Status
		Output      any
		OutputSet   bool
		Error       *string
		CompletedAt *time.Time
	}

	// Template is a reusable workflow blueprint grouped by category.
	Template struct {
		ID          string                 `json:"id"`
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Category    string                 `json:"category"`
		Nodes       []workflow.Node        `json:"nodes"`
		Edges       []workflow.Edge        `json:"edges"`
		Variables   map[string]any         `json:"variables,omitempty"`
		Metadata    map[string]any         `json:"metadata,omitempty"`
		CreatedAt   time.Time              `json:"createdAt"`
	}
)
