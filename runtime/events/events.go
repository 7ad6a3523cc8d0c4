// Package events defines the execution event stream: the six event names the
// runner emits, their payload shapes, and the Sink contract transports
// implement. Delivery is at-least-once to each subscriber; subscribers must be
// idempotent on node id and event name.
package events

import (
	"context"
	"time"

	"github.com/flowd-dev/flowd/runtime/execution"
	"github.com/flowd-dev/flowd/runtime/workflow"
)

type (
	// Type enumerates the event names on the execution stream.
	Type string

	// Event is one entry on an execution's event stream. Concrete event types
	// embed Base for the standard metadata and expose a typed Data field.
	// Events are immutable after construction and safe to send concurrently.
	Event interface {
		// Type returns the event name.
		Type() Type
		// ExecutionID returns the execution that produced the event.
		ExecutionID() string
		// WorkflowID returns the workflow the execution belongs to.
		WorkflowID() string
		// Payload returns the event data in a JSON-serializable form. Sinks use
		// it for generic marshaling; consumers that need typed access assert on
		// the concrete event type instead.
		Payload() any
	}

	// Sink delivers execution events to a transport (in-process subscriber,
	// Redis stream, CLI printer). Implementations must be safe for concurrent
	// Send calls: independent nodes settle in parallel.
	Sink interface {
		// Send publishes one event. Errors surface to the publisher; the runner
		// treats persistence failures as non-fatal and logs them.
		Send(ctx context.Context, event Event) error
		// Close releases transport resources. Close is idempotent.
		Close(ctx context.Context) error
	}

	// NodeStart announces that a node began dispatch.
	NodeStart struct {
		Base
		Data NodeStartPayload
	}

	// NodeComplete announces that a node settled successfully.
	NodeComplete struct {
		Base
		Data NodeCompletePayload
	}

	// NodeError announces that a node failed. A node error is fatal to its
	// execution.
	NodeError struct {
		Base
		Data NodeErrorPayload
	}

	// ExecutionComplete is the terminal event of a successful execution.
	ExecutionComplete struct {
		Base
		Data ExecutionCompletePayload
	}

	// ExecutionError is the terminal event of a failed execution. It preserves
	// the root cause of the first node error.
	ExecutionError struct {
		Base
		Data ExecutionErrorPayload
	}

	// Log carries one log line, interleaved with node and terminal events.
	Log struct {
		Base
		Data LogPayload
	}

	// NodeStartPayload is the wire payload for node:start.
	NodeStartPayload struct {
		NodeID string        `json:"nodeId"`
		Kind   workflow.Kind `json:"kind"`
	}

	// NodeCompletePayload is the wire payload for node:complete.
	NodeCompletePayload struct {
		NodeID string `json:"nodeId"`
		Output any    `json:"output,omitempty"`
	}

	// NodeErrorPayload is the wire payload for node:error.
	NodeErrorPayload struct {
		NodeID string `json:"nodeId"`
		Error  string `json:"error"`
	}

	// ExecutionCompletePayload is the wire payload for execution:complete.
	ExecutionCompletePayload struct {
		Output any `json:"output,omitempty"`
	}

	// ExecutionErrorPayload is the wire payload for execution:error.
	ExecutionErrorPayload struct {
		Error string `json:"error"`
	}

	// LogPayload is the wire payload for log events.
	LogPayload struct {
		Level     execution.LogLevel `json:"level"`
		NodeID    string             `json:"nodeId,omitempty"`
		Message   string             `json:"message"`
		Data      map[string]any     `json:"data,omitempty"`
		Timestamp time.Time          `json:"timestamp"`
	}

	// Base provides the standard Event metadata. Field names are abbreviated
	// because Base fields are only reached through the interface methods.
	Base struct {
		t Type
		e string
		w string
		p any
	}
)

// Event names.
const (
	TypeNodeStart         Type = "node:start"
	TypeNodeComplete      Type = "node:complete"
	TypeNodeError         Type = "node:error"
	TypeExecutionComplete Type = "execution:complete"
	TypeExecutionError    Type = "execution:error"
	TypeLog               Type = "log"
)

// NewBase constructs Base metadata for a concrete event.
func NewBase(t Type, executionID, workflowID string, payload any) Base {
	return Base{t: t, e: executionID, w: workflowID, p: payload}
}

// Type implements Event.Type.
func (b Base) Type() Type { return b.t }

// ExecutionID implements Event.ExecutionID.
func (b Base) ExecutionID() string { return b.e }

// WorkflowID implements Event.WorkflowID.
func (b Base) WorkflowID() string { return b.w }

// Payload implements Event.Payload.
func (b Base) Payload() any { return b.p }

// NewNodeStart constructs a node:start event.
func NewNodeStart(executionID, workflowID string, nodeID string, kind workflow.Kind) NodeStart {
	p := NodeStartPayload{NodeID: nodeID, Kind: kind}
	return NodeStart{Base: NewBase(TypeNodeStart, executionID, workflowID, p), Data: p}
}

// NewNodeComplete constructs a node:complete event.
func NewNodeComplete(executionID, workflowID string, nodeID string, output any) NodeComplete {
	p := NodeCompletePayload{NodeID: nodeID, Output: output}
	return NodeComplete{Base: NewBase(TypeNodeComplete, executionID, workflowID, p), Data: p}
}

// NewNodeError constructs a node:error event.
func NewNodeError(executionID, workflowID string, nodeID string, errMsg string) NodeError {
	p := NodeErrorPayload{NodeID: nodeID, Error: errMsg}
	return NodeError{Base: NewBase(TypeNodeError, executionID, workflowID, p), Data: p}
}

// NewExecutionComplete constructs an execution:complete event.
func NewExecutionComplete(executionID, workflowID string, output any) ExecutionComplete {
	p := ExecutionCompletePayload{Output: output}
	return ExecutionComplete{Base: NewBase(TypeExecutionComplete, executionID, workflowID, p), Data: p}
}

// NewExecutionError constructs an execution:error event.
func NewExecutionError(executionID, workflowID string, errMsg string) ExecutionError {
	p := ExecutionErrorPayload{Error: errMsg}
	return ExecutionError{Base: NewBase(TypeExecutionError, executionID, workflowID, p), Data: p}
}

// NewLog constructs a log event.
func NewLog(executionID, workflowID string, level execution.LogLevel, nodeID, message string, data map[string]any) Log {
	p := LogPayload{Level: level, NodeID: nodeID, Message: message, Data: data, Timestamp: time.Now().UTC()}
	return Log{Base: NewBase(TypeLog, executionID, workflowID, p), Data: p}
}
