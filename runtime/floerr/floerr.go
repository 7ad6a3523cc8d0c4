// Package floerr provides structured errors for the workflow runtime. Every
// failure the runtime surfaces carries a Kind drawn from a closed taxonomy so
// callers can branch on failure class without string matching, while the
// underlying cause remains reachable through errors.Is/As.
package floerr

import (
	"errors"
	"fmt"
)

// Kind classifies runtime failures into a small set of stable categories.
type Kind string

const (
	// KindUnknownWorkflow indicates the referenced workflow does not exist.
	KindUnknownWorkflow Kind = "unknown_workflow"

	// KindDanglingEdge indicates an edge references a node id that is not part
	// of the workflow.
	KindDanglingEdge Kind = "dangling_edge"

	// KindDuplicateNode indicates a workflow document declares the same node id
	// more than once.
	KindDuplicateNode Kind = "duplicate_node"

	// KindCycleDetected indicates the workflow graph contains a directed cycle.
	KindCycleDetected Kind = "cycle_detected"

	// KindMissingNodeData indicates a required per-kind data field is absent.
	KindMissingNodeData Kind = "missing_node_data"

	// KindUnknownTool indicates a tool id is not present in the registry.
	KindUnknownTool Kind = "unknown_tool"

	// KindProviderUnconfigured indicates no credential is configured for the
	// requested model provider.
	KindProviderUnconfigured Kind = "provider_unconfigured"

	// KindProviderError indicates a model provider backend fault.
	KindProviderError Kind = "provider_error"

	// KindProviderTimeout indicates a model provider call exceeded its deadline.
	KindProviderTimeout Kind = "provider_timeout"

	// KindSandboxDenied indicates user code attempted an operation the sandbox
	// forbids (network, filesystem, timer access).
	KindSandboxDenied Kind = "sandbox_denied"

	// KindExpressionError indicates a user expression failed to compile or threw
	// during evaluation.
	KindExpressionError Kind = "expression_error"

	// KindStorage indicates a persistence failure carrying the underlying cause.
	KindStorage Kind = "storage_error"

	// KindCorruptRecord indicates a persisted record could not be decoded.
	KindCorruptRecord Kind = "corrupt_record"

	// KindCancelled indicates in-flight work was aborted by cancellation.
	KindCancelled Kind = "cancelled"
)

// Error is the structured error type used across the runtime. It carries a
// Kind, a human-readable message, an optional node id locating the failure
// within a workflow, and an optional cause preserved for errors.Is/As.
type Error struct {
	kind    Kind
	message string
	nodeID  string
	cause   error
}

// New constructs an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error that preserves cause in its chain. The message may
// be empty, in which case the cause's message is used.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{kind: kind, message: message, cause: cause}
}

// Wrapf constructs an Error with a formatted message that preserves cause in
// its chain.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

// WithNode returns a copy of the error annotated with the node id where the
// failure occurred.
func (e *Error) WithNode(nodeID string) *Error {
	if e == nil {
		return nil
	}
	dup := *e
	dup.nodeID = nodeID
	return &dup
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

// NodeID returns the node id associated with the failure, if any.
func (e *Error) NodeID() string { return e.nodeID }

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.nodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.kind, e.nodeID, e.message)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// KindOf returns the Kind of err when it is (or wraps) an Error, and the empty
// Kind otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return ""
}

// Is reports whether err is (or wraps) an Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
