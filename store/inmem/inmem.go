// Package inmem provides the in-memory Store used by tests and by `flowd run`
// when no storage URI is configured. Records are deep-copied through a JSON
// round trip on the way in and out, so callers cannot perturb stored state and
// non-serializable values are caught at the boundary.
package inmem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/flowd-dev/flowd/runtime/execution"
	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/store"
)

// Store implements store.Store with mutex-guarded maps. A single mutex
// serializes all mutations, which trivially satisfies the per-execution
// serialization contract.
type Store struct {
	mu         sync.RWMutex
	workflows  map[string]*workflow.Workflow
	executions map[string]*execution.Execution
	templates  map[string]*store.Template
	logs       map[string][]execution.LogLine
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		workflows:  make(map[string]*workflow.Workflow),
		executions: make(map[string]*execution.Execution),
		templates:  make(map[string]*store.Template),
		logs:       make(map[string][]execution.LogLine),
	}
}

func deepCopy[T any](src *T) (*T, error) {
	doc, err := json.Marshal(src)
	if err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "encode record", err)
	}
	dst := new(T)
	if err := json.Unmarshal(doc, dst); err != nil {
		return nil, floerr.Wrap(floerr.KindCorruptRecord, "decode record", err)
	}
	return dst, nil
}

// CreateWorkflow implements store.Store.
func (s *Store) CreateWorkflow(_ context.Context, w *workflow.Workflow) error {
	dup, err := deepCopy(w)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[w.ID]; exists {
		return floerr.Newf(floerr.KindStorage, "workflow %s already exists", w.ID)
	}
	s.workflows[w.ID] = dup
	return nil
}

// UpdateWorkflow implements store.Store.
func (s *Store) UpdateWorkflow(_ context.Context, id string, upd store.WorkflowUpdate) (*workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Name != nil {
		w.Name = *upd.Name
	}
	if upd.Description != nil {
		w.Description = *upd.Description
	}
	if upd.Nodes != nil {
		w.Nodes = upd.Nodes
	}
	if upd.Edges != nil {
		w.Edges = upd.Edges
	}
	if upd.Variables != nil {
		w.Variables = upd.Variables
	}
	if upd.Metadata != nil {
		w.Metadata = upd.Metadata
	}
	w.UpdatedAt = time.Now().UTC()
	return deepCopy(w)
}

// DeleteWorkflow implements store.Store.
func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

// GetWorkflow implements store.Store.
func (s *Store) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return deepCopy(w)
}

// ListWorkflows implements store.Store.
func (s *Store) ListWorkflows(_ context.Context) ([]*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workflow.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		dup, err := deepCopy(w)
		if err != nil {
			return nil, err
		}
		out = append(out, dup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// CreateExecution implements store.Store.
func (s *Store) CreateExecution(_ context.Context, e *execution.Execution) error {
	dup, err := deepCopy(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[e.ID]; exists {
		return floerr.Newf(floerr.KindStorage, "execution %s already exists", e.ID)
	}
	s.executions[e.ID] = dup
	return nil
}

// UpdateExecution implements store.Store.
func (s *Store) UpdateExecution(_ context.Context, id string, upd store.ExecutionUpdate) (*execution.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Status != nil {
		e.Status = *upd.Status
	}
	if upd.OutputSet {
		e.Output = upd.Output
	}
	if upd.Error != nil {
		e.Error = *upd.Error
	}
	if upd.CompletedAt != nil {
		e.CompletedAt = upd.CompletedAt
	}
	return deepCopy(e)
}

// GetExecution implements store.Store.
func (s *Store) GetExecution(_ context.Context, id string) (*execution.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup, err := deepCopy(e)
	if err != nil {
		return nil, err
	}
	dup.Logs = append([]execution.LogLine(nil), s.logs[id]...)
	return dup, nil
}

// ListExecutions implements store.Store.
func (s *Store) ListExecutions(_ context.Context, workflowID string) ([]*execution.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*execution.Execution, 0, len(s.executions))
	for _, e := range s.executions {
		if workflowID != "" && e.WorkflowID != workflowID {
			continue
		}
		dup, err := deepCopy(e)
		if err != nil {
			return nil, err
		}
		out = append(out, dup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// UpdateExecutionNodeState implements store.Store. Transitions that would
// reverse the monotonic node lifecycle are ignored rather than failed: the
// at-least-once event stream may redeliver a transition the store already
// applied.
func (s *Store) UpdateExecutionNodeState(_ context.Context, executionID, nodeID string, status execution.NodeStatus, output any, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[executionID]
	if !ok {
		return store.ErrNotFound
	}
	ns := e.NodeState(nodeID)
	if !ns.Status.CanTransition(status) {
		return nil
	}
	now := time.Now().UTC()
	ns.Status = status
	switch {
	case status == execution.NodeRunning:
		ns.StartedAt = &now
	case status.Terminal():
		ns.CompletedAt = &now
		if status == execution.NodeCompleted {
			ns.Output = output
		}
		ns.Error = errMsg
	}
	return nil
}

// AppendLog implements store.Store.
func (s *Store) AppendLog(_ context.Context, executionID, nodeID string, level execution.LogLevel, message string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[executionID]; !ok {
		return store.ErrNotFound
	}
	s.logs[executionID] = append(s.logs[executionID], execution.LogLine{
		Timestamp: time.Now().UTC(),
		Level:     level,
		NodeID:    nodeID,
		Message:   message,
		Data:      data,
	})
	return nil
}

// CreateTemplate implements store.Store.
func (s *Store) CreateTemplate(_ context.Context, t *store.Template) error {
	dup, err := deepCopy(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[t.ID]; exists {
		return floerr.Newf(floerr.KindStorage, "template %s already exists", t.ID)
	}
	s.templates[t.ID] = dup
	return nil
}

// GetTemplate implements store.Store.
func (s *Store) GetTemplate(_ context.Context, id string) (*store.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return deepCopy(t)
}

// ListTemplates implements store.Store.
func (s *Store) ListTemplates(_ context.Context, category string) ([]*store.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.Template, 0, len(s.templates))
	for _, t := range s.templates {
		if category != "" && t.Category != category {
			continue
		}
		dup, err := deepCopy(t)
		if err != nil {
			return nil, err
		}
		out = append(out, dup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteTemplate implements store.Store.
func (s *Store) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.templates, id)
	return nil
}
