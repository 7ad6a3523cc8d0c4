// Package execution defines the runtime state of one workflow run: the
// execution record, per-node state, and the append-only log.
package execution

import (
	"time"
)

type (
	// Status is the execution lifecycle state. Executions advance
	// pending -> running -> one of (completed | error | stopped) exactly once.
	Status string

	// NodeStatus is the per-node lifecycle state. Nodes transition
	// monotonically pending -> running -> (completed | error | skipped); no
	// reverse transitions.
	NodeStatus string

	// LogLevel is the severity of a log line.
	LogLevel string

	// Execution records one run of a workflow to terminal status.
	Execution struct {
		// ID is the unique execution identifier.
		ID string `json:"id"`
		// WorkflowID is the owning workflow.
		WorkflowID string `json:"workflowId"`
		// Status is the lifecycle state. The Store is the sole authority on the
		// persisted value.
		Status Status `json:"status"`
		// Input is the value supplied at start. Any JSON value is legal, not
		// just objects.
		Input any `json:"input,omitempty"`
		// Output is the terminal result, set exactly once on completion.
		Output any `json:"output,omitempty"`
		// Error is the terminal error message for error executions.
		Error string `json:"error,omitempty"`
		// StartedAt is the start timestamp.
		StartedAt time.Time `json:"startedAt"`
		// CompletedAt is set when the execution reaches a terminal status.
		CompletedAt *time.Time `json:"completedAt,omitempty"`
		// NodeStates maps node id to its state. Entries are created lazily at
		// the node's first transition.
		NodeStates map[string]*NodeState `json:"nodeStates,omitempty"`
		// Logs is the append-only log. The in-memory view may cap at a bounded
		// recent window; the Store keeps the full list.
		Logs []LogLine `json:"logs,omitempty"`
	}

	// NodeState records one node's progress within an execution.
	NodeState struct {
		Status NodeStatus `json:"status"`
		// StartedAt is set at the running transition.
		StartedAt *time.Time `json:"startedAt,omitempty"`
		// CompletedAt is set at a terminal transition.
		CompletedAt *time.Time `json:"completedAt,omitempty"`
		// Output is set exactly once, at the completed transition.
		Output any `json:"output,omitempty"`
		// Error is the failure message for error nodes.
		Error string `json:"error,omitempty"`
		// Retries counts provider-level retry attempts observed for the node.
		Retries int `json:"retries,omitempty"`
	}

	// LogLine is one append-only log entry.
	LogLine struct {
		Timestamp time.Time `json:"timestamp"`
		Level     LogLevel  `json:"level"`
		// NodeID locates the line within the graph when the line is node-scoped.
		NodeID  string `json:"nodeId,omitempty"`
		Message string `json:"message"`
		// Data is an optional structured payload.
		Data map[string]any `json:"data,omitempty"`
	}
)

// Execution statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

// Node statuses.
const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeError     NodeStatus = "error"
	NodeSkipped   NodeStatus = "skipped"
)

// Log levels.
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// MaxRecentLogLines bounds the in-memory log window kept on an Execution.
const MaxRecentLogLines = 1000

// Terminal reports whether the status is a terminal execution state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusStopped
}

// Terminal reports whether the status is a terminal node state.
func (s NodeStatus) Terminal() bool {
	return s == NodeCompleted || s == NodeError || s == NodeSkipped
}

// rank orders node statuses along the monotonic lifecycle.
func (s NodeStatus) rank() int {
	switch s {
	case NodePending:
		return 0
	case NodeRunning:
		return 1
	case NodeCompleted, NodeError, NodeSkipped:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next respects the monotonic
// node lifecycle. The zero status admits any transition (lazy creation).
func (s NodeStatus) CanTransition(next NodeStatus) bool {
	if s == "" {
		return true
	}
	return next.rank() > s.rank()
}

// AppendLog appends a line to the execution's bounded in-memory window,
// evicting the oldest lines past MaxRecentLogLines.
func (e *Execution) AppendLog(line LogLine) {
	e.Logs = append(e.Logs, line)
	if over := len(e.Logs) - MaxRecentLogLines; over > 0 {
		e.Logs = append(e.Logs[:0], e.Logs[over:]...)
	}
}

// NodeState returns the state entry for the node, creating it lazily.
func (e *Execution) NodeState(nodeID string) *NodeState {
	if e.NodeStates == nil {
		e.NodeStates = make(map[string]*NodeState)
	}
	ns, ok := e.NodeStates[nodeID]
	if !ok {
		ns = &NodeState{Status: NodePending}
		e.NodeStates[nodeID] = ns
	}
	return ns
}
