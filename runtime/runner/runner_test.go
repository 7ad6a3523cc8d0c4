package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd-dev/flowd/runtime/dispatch"
	"github.com/flowd-dev/flowd/runtime/events"
	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/tools"
)

// recorder captures the event stream for assertions.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) sink() events.Sink {
	return events.SinkFunc(func(_ context.Context, ev events.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// trace flattens the stream into "type/node" entries for order assertions.
func (r *recorder) trace() []string {
	var out []string
	for _, ev := range r.all() {
		switch e := ev.(type) {
		case events.NodeStart:
			out = append(out, string(e.Type())+"/"+e.Data.NodeID)
		case events.NodeComplete:
			out = append(out, string(e.Type())+"/"+e.Data.NodeID)
		case events.NodeError:
			out = append(out, string(e.Type())+"/"+e.Data.NodeID)
		default:
			out = append(out, string(ev.Type()))
		}
	}
	return out
}

func (r *recorder) count(t events.Type) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type() == t {
			n++
		}
	}
	return n
}

// stubDispatcher routes every node through a single function.
type stubDispatcher struct {
	fn func(ctx context.Context, node workflow.Node, input any) (any, error)
}

func (s *stubDispatcher) Dispatch(ctx context.Context, node workflow.Node, input any, _ *tools.Context) (any, error) {
	return s.fn(ctx, node, input)
}

func newTestBus(t *testing.T, rec *recorder) *events.Bus {
	t.Helper()
	bus := events.NewBus()
	_, err := bus.Register(rec.sink())
	require.NoError(t, err)
	return bus
}

func runWorkflow(t *testing.T, wf *workflow.Workflow, input any, d NodeDispatcher, rec *recorder) (any, error) {
	t.Helper()
	r := New(Options{
		Workflow:    wf,
		ExecutionID: "exec-1",
		Input:       input,
		Dispatcher:  d,
		Bus:         newTestBus(t, rec),
	})
	return r.Run(context.Background())
}

func TestLinearChainEventOrder(t *testing.T) {
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.KindInput, Label: "Input"},
			{ID: "double", Type: workflow.KindTransform, Label: "Double",
				Data: workflow.MustData(map[string]any{"transform": "input * 2"})},
			{ID: "out", Type: workflow.KindOutput, Label: "Result"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "in", Target: "double"},
			{ID: "e2", Source: "double", Target: "out"},
		},
	}
	rec := &recorder{}
	out, err := runWorkflow(t, wf, 3, dispatch.New(dispatch.Options{}), rec)
	require.NoError(t, err)
	assert.Equal(t, 6, out)
	assert.Equal(t, []string{
		"node:start/in",
		"node:complete/in",
		"node:start/double",
		"node:complete/double",
		"node:start/out",
		"node:complete/out",
		"execution:complete",
	}, rec.trace())
}

func TestDiamondFanInKeyedByLabel(t *testing.T) {
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.KindInput, Label: "Input"},
			{ID: "l", Type: workflow.KindTransform, Label: "left",
				Data: workflow.MustData(map[string]any{"transform": "input"})},
			{ID: "r", Type: workflow.KindTransform, Label: "right",
				Data: workflow.MustData(map[string]any{"transform": "input * 8"})},
			{ID: "out", Type: workflow.KindOutput, Label: "Result"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "in", Target: "l"},
			{ID: "e2", Source: "in", Target: "r"},
			{ID: "e3", Source: "l", Target: "out"},
			{ID: "e4", Source: "r", Target: "out"},
		},
	}
	rec := &recorder{}
	out, err := runWorkflow(t, wf, 5, dispatch.New(dispatch.Options{}), rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"left": 5, "right": 40}, out)
}

func TestFailFastSkipsDownstream(t *testing.T) {
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: workflow.KindInput, Label: "A"},
			{ID: "b", Type: workflow.KindTransform, Label: "B"},
			{ID: "c", Type: workflow.KindOutput, Label: "C"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "c"},
		},
	}
	boom := floerr.New(floerr.KindExpressionError, "bad expression")
	d := &stubDispatcher{fn: func(_ context.Context, node workflow.Node, input any) (any, error) {
		if node.ID == "b" {
			return nil, boom
		}
		return input, nil
	}}

	rec := &recorder{}
	_, err := runWorkflow(t, wf, "x", d, rec)
	require.Error(t, err)
	assert.True(t, floerr.Is(err, floerr.KindExpressionError))

	trace := rec.trace()
	assert.Contains(t, trace, "node:error/b")
	assert.Equal(t, "execution:error", trace[len(trace)-1])
	assert.NotContains(t, trace, "node:start/c")
	assert.Equal(t, 0, rec.count(events.TypeExecutionComplete))
}

func TestStopDiscardsInFlightOutputs(t *testing.T) {
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.KindInput, Label: "Input"},
			{ID: "slow", Type: workflow.KindTransform, Label: "Slow"},
			{ID: "out", Type: workflow.KindOutput, Label: "Result"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "in", Target: "slow"},
			{ID: "e2", Source: "slow", Target: "out"},
		},
	}
	started := make(chan struct{})
	d := &stubDispatcher{fn: func(ctx context.Context, node workflow.Node, input any) (any, error) {
		if node.ID == "slow" {
			close(started)
			<-ctx.Done()
			// Finishes after the stop; this output must be discarded.
			return "late", nil
		}
		return input, nil
	}}

	rec := &recorder{}
	r := New(Options{
		Workflow:    wf,
		ExecutionID: "exec-1",
		Input:       "seed",
		Dispatcher:  d,
		Bus:         newTestBus(t, rec),
	})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-started
	r.Stop()
	err := <-done
	require.ErrorIs(t, err, ErrStopped)

	trace := rec.trace()
	assert.Contains(t, trace, "node:start/slow")
	assert.NotContains(t, trace, "node:complete/slow")
	assert.NotContains(t, trace, "node:start/out")
	// No terminal event: the engine records the stopped status itself.
	assert.Equal(t, 0, rec.count(events.TypeExecutionComplete))
	assert.Equal(t, 0, rec.count(events.TypeExecutionError))
}

func TestFanInDuplicateLabelLaterEdgeWins(t *testing.T) {
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.KindInput, Label: "Input"},
			{ID: "x1", Type: workflow.KindTransform, Label: "dup"},
			{ID: "x2", Type: workflow.KindTransform, Label: "dup"},
			{ID: "sink", Type: workflow.KindOutput, Label: "Sink"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "in", Target: "x1"},
			{ID: "e2", Source: "in", Target: "x2"},
			{ID: "e3", Source: "x1", Target: "sink"},
			{ID: "e4", Source: "x2", Target: "sink"},
		},
	}
	d := &stubDispatcher{fn: func(_ context.Context, node workflow.Node, input any) (any, error) {
		switch node.ID {
		case "x1":
			return "first", nil
		case "x2":
			return "second", nil
		}
		return input, nil
	}}

	rec := &recorder{}
	out, err := runWorkflow(t, wf, nil, d, rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"dup": "second"}, out)
}

func TestSingleNodeReceivesExecutionInput(t *testing.T) {
	wf := &workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{{ID: "only", Type: workflow.KindOutput, Label: "Only"}},
	}
	rec := &recorder{}
	out, err := runWorkflow(t, wf, "seed", dispatch.New(dispatch.Options{}), rec)
	require.NoError(t, err)
	assert.Equal(t, "seed", out)
}

func TestMultipleTerminalNodesYieldLabeledMap(t *testing.T) {
	// No output-kind node: result selection falls back to the terminal nodes.
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.KindInput, Label: "Input"},
			{ID: "t1", Type: workflow.KindTransform, Label: "first"},
			{ID: "t2", Type: workflow.KindTransform, Label: "second"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "in", Target: "t1"},
			{ID: "e2", Source: "in", Target: "t2"},
		},
	}
	d := &stubDispatcher{fn: func(_ context.Context, node workflow.Node, input any) (any, error) {
		return node.ID, nil
	}}

	rec := &recorder{}
	out, err := runWorkflow(t, wf, nil, d, rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"first": "t1", "second": "t2"}, out)
}

func TestParallelismCapPreservesReadyOrder(t *testing.T) {
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: workflow.KindInput, Label: "A"},
			{ID: "b", Type: workflow.KindInput, Label: "B"},
			{ID: "c", Type: workflow.KindInput, Label: "C"},
		},
	}
	var mu sync.Mutex
	var order []string
	d := &stubDispatcher{fn: func(_ context.Context, node workflow.Node, input any) (any, error) {
		mu.Lock()
		order = append(order, node.ID)
		mu.Unlock()
		return input, nil
	}}

	rec := &recorder{}
	r := New(Options{
		Workflow:           wf,
		ExecutionID:        "exec-1",
		Input:              nil,
		Dispatcher:         d,
		Bus:                newTestBus(t, rec),
		MaxNodeParallelism: 1,
	})
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestForEachLoopFansThroughDownstream(t *testing.T) {
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.KindInput, Label: "Input"},
			{ID: "loop", Type: workflow.KindLoop, Label: "Each",
				Data: workflow.MustData(map[string]any{"loopType": "forEach"})},
			{ID: "merge", Type: workflow.KindMerge, Label: "Merge"},
			{ID: "out", Type: workflow.KindOutput, Label: "Result"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "in", Target: "loop"},
			{ID: "e2", Source: "loop", Target: "merge"},
			{ID: "e3", Source: "merge", Target: "out"},
		},
	}
	rec := &recorder{}
	out, err := runWorkflow(t, wf, []any{[]any{1, 2}, []any{3}}, dispatch.New(dispatch.Options{}), rec)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, out)
}

func TestRunSurfacesFirstErrorOnly(t *testing.T) {
	// Both roots fail in the same batch; exactly one terminal error event goes
	// out and the run error matches one of the node failures.
	wf := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: workflow.KindTransform, Label: "A"},
			{ID: "b", Type: workflow.KindTransform, Label: "B"},
		},
	}
	d := &stubDispatcher{fn: func(_ context.Context, node workflow.Node, input any) (any, error) {
		return nil, errors.New("fail " + node.ID)
	}}

	rec := &recorder{}
	_, err := runWorkflow(t, wf, nil, d, rec)
	require.Error(t, err)
	assert.Equal(t, 1, rec.count(events.TypeExecutionError))
	assert.Equal(t, 2, rec.count(events.TypeNodeError))
}
