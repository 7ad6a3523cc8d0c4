package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd-dev/flowd/runtime/execution"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/store"
)

func testWorkflow(id string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:   id,
		Name: "test " + id,
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.KindInput, Label: "Input"},
			{ID: "out", Type: workflow.KindOutput, Label: "Output"},
		},
		Edges:     []workflow.Edge{{ID: "e1", Source: "in", Target: "out"}},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestWorkflowCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateWorkflow(ctx, testWorkflow("wf-1")))
	require.Error(t, s.CreateWorkflow(ctx, testWorkflow("wf-1")), "duplicate id must be rejected")

	w, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "test wf-1", w.Name)

	name := "renamed"
	updated, err := s.UpdateWorkflow(ctx, "wf-1", store.WorkflowUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.UpdatedAt.After(w.UpdatedAt) || updated.UpdatedAt.Equal(w.UpdatedAt))

	require.NoError(t, s.DeleteWorkflow(ctx, "wf-1"))
	_, err = s.GetWorkflow(ctx, "wf-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteWorkflow(ctx, "wf-1"), store.ErrNotFound)
}

func TestGetWorkflowReturnsDeepCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateWorkflow(ctx, testWorkflow("wf-1")))

	w, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	w.Nodes[0].ID = "mutated"

	again, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "in", again.Nodes[0].ID)
}

func TestListWorkflowsOrdersByModificationTime(t *testing.T) {
	ctx := context.Background()
	s := New()
	older := testWorkflow("older")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := testWorkflow("newer")
	require.NoError(t, s.CreateWorkflow(ctx, older))
	require.NoError(t, s.CreateWorkflow(ctx, newer))

	list, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].ID)
}

func TestExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := &execution.Execution{
		ID:         "ex-1",
		WorkflowID: "wf-1",
		Status:     execution.StatusRunning,
		Input:      float64(3),
		StartedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.CreateExecution(ctx, e))

	done := execution.StatusCompleted
	now := time.Now().UTC()
	updated, err := s.UpdateExecution(ctx, "ex-1", store.ExecutionUpdate{
		Status:      &done,
		Output:      float64(6),
		OutputSet:   true,
		CompletedAt: &now,
	})
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, updated.Status)
	assert.Equal(t, float64(6), updated.Output)
	require.NotNil(t, updated.CompletedAt)
}

func TestUpdateExecutionNodeStateIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateExecution(ctx, &execution.Execution{
		ID: "ex-1", WorkflowID: "wf-1", Status: execution.StatusRunning, StartedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.UpdateExecutionNodeState(ctx, "ex-1", "n1", execution.NodeRunning, nil, ""))
	require.NoError(t, s.UpdateExecutionNodeState(ctx, "ex-1", "n1", execution.NodeCompleted, 42, ""))
	// Redelivered running transition is ignored, not failed.
	require.NoError(t, s.UpdateExecutionNodeState(ctx, "ex-1", "n1", execution.NodeRunning, nil, ""))

	e, err := s.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	ns := e.NodeStates["n1"]
	require.NotNil(t, ns)
	assert.Equal(t, execution.NodeCompleted, ns.Status)
	assert.Equal(t, float64(42), ns.Output)
	require.NotNil(t, ns.CompletedAt)
}

func TestAppendLogAndRead(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateExecution(ctx, &execution.Execution{
		ID: "ex-1", WorkflowID: "wf-1", Status: execution.StatusRunning, StartedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.AppendLog(ctx, "ex-1", "n1", execution.LogInfo, "first", nil))
	require.NoError(t, s.AppendLog(ctx, "ex-1", "", execution.LogWarn, "second", map[string]any{"k": "v"}))

	e, err := s.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	require.Len(t, e.Logs, 2)
	assert.Equal(t, "first", e.Logs[0].Message)
	assert.Equal(t, execution.LogWarn, e.Logs[1].Level)

	assert.ErrorIs(t, s.AppendLog(ctx, "missing", "", execution.LogInfo, "x", nil), store.ErrNotFound)
}

func TestListExecutionsFiltersByWorkflow(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, wf := range []string{"wf-a", "wf-a", "wf-b"} {
		require.NoError(t, s.CreateExecution(ctx, &execution.Execution{
			ID:         string(rune('x'+i)) + "-exec",
			WorkflowID: wf,
			Status:     execution.StatusRunning,
			StartedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}
	all, err := s.ListExecutions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := s.ListExecutions(ctx, "wf-a")
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestTemplateCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	tpl := &store.Template{
		ID:       "tpl-1",
		Name:     "Scrape and summarize",
		Category: "web",
		Nodes:    testWorkflow("x").Nodes,
		Edges:    testWorkflow("x").Edges,
	}
	require.NoError(t, s.CreateTemplate(ctx, tpl))

	got, err := s.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Category)

	list, err := s.ListTemplates(ctx, "web")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	empty, err := s.ListTemplates(ctx, "data")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.DeleteTemplate(ctx, "tpl-1"))
	_, err = s.GetTemplate(ctx, "tpl-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
