// Package runner implements the per-execution DAG scheduler. A Runner owns
// the output table, in-degree counters, and ready set for one execution,
// drives node dispatch in parallel batches, and emits the execution event
// stream. All hot-path state is mutated only by the coordinating Run loop;
// workers communicate results back through the batch barrier.
package runner

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flowd-dev/flowd/config"
	"github.com/flowd-dev/flowd/runtime/events"
	"github.com/flowd-dev/flowd/runtime/execution"
	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/telemetry"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/tools"
)

// ErrStopped is returned by Run when the user stopped the execution. It is
// not a failure: the engine records terminal status stopped and emits no
// terminal event.
var ErrStopped = floerr.New(floerr.KindCancelled, "execution stopped")

type (
	// NodeDispatcher executes a single node. The production implementation is
	// dispatch.Dispatcher; tests install fakes.
	NodeDispatcher interface {
		Dispatch(ctx context.Context, node workflow.Node, input any, tc *tools.Context) (any, error)
	}

	// Options configures a Runner.
	Options struct {
		// Workflow is the validated workflow snapshot. The runner treats it as
		// immutable.
		Workflow *workflow.Workflow
		// ExecutionID identifies the execution being driven.
		ExecutionID string
		// Input is the execution's input record.
		Input any
		// Dispatcher executes nodes. Required.
		Dispatcher NodeDispatcher
		// Bus receives the event stream. Required.
		Bus *events.Bus
		// Config is the process configuration snapshot for this execution.
		Config *config.Config
		// Logger receives scheduling diagnostics. Nil means silent.
		Logger telemetry.Logger
		// MaxNodeParallelism caps the batch dispatch width. Zero means the batch
		// is as wide as the ready set; waiting nodes run in FIFO order.
		MaxNodeParallelism int
	}

	// Runner drives one execution to a terminal state.
	Runner struct {
		wf          *workflow.Workflow
		executionID string
		input       any
		dispatcher  NodeDispatcher
		bus         *events.Bus
		cfg         *config.Config
		logger      telemetry.Logger
		maxParallel int

		// Owned by the Run loop.
		outputs  map[string]any
		indegree map[string]int
		forward  map[string][]string
		incoming map[string][]string
		ready    []string

		stopped atomic.Bool
		cancel  context.CancelFunc
		mu      sync.Mutex
	}

	// settled is one node's batch result.
	settled struct {
		nodeID string
		output any
		err    error
		// notRun marks a node whose dispatch was elided by cancellation; no
		// events were emitted for it.
		notRun bool
		// discarded marks a node that finished after a user stop; its output is
		// dropped and no downstream is enqueued.
		discarded bool
	}
)

// New constructs a Runner. The workflow must already be validated.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	return &Runner{
		wf:          opts.Workflow,
		executionID: opts.ExecutionID,
		input:       opts.Input,
		dispatcher:  opts.Dispatcher,
		bus:         opts.Bus,
		cfg:         cfg,
		logger:      logger,
		maxParallel: opts.MaxNodeParallelism,
	}
}

// Stop requests cooperative cancellation. No new node starts after Stop
// returns; in-flight dispatches may finish but their outputs are discarded.
func (r *Runner) Stop() {
	r.stopped.Store(true)
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drives the schedule to termination and returns the execution output.
// A user stop returns ErrStopped; a node failure returns the first captured
// error after emitting execution:error.
func (r *Runner) Run(ctx context.Context) (any, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	// Terminal events must go out even after cancellation.
	emitCtx := context.WithoutCancel(ctx)

	r.setup()
	tc := r.executionContext()

	var firstErr error
	for len(r.ready) > 0 {
		if r.stopped.Load() || firstErr != nil {
			break
		}
		batch := r.ready
		r.ready = nil

		for _, s := range r.dispatchBatch(runCtx, batch, tc) {
			if s.notRun || s.discarded {
				continue
			}
			if s.err != nil {
				r.publish(emitCtx, events.NewNodeError(r.executionID, r.wf.ID, s.nodeID, s.err.Error()))
				if firstErr == nil {
					firstErr = s.err
					cancel()
				}
				continue
			}
			r.outputs[s.nodeID] = s.output
			r.publish(emitCtx, events.NewNodeComplete(r.executionID, r.wf.ID, s.nodeID, s.output))
			for _, next := range r.forward[s.nodeID] {
				r.indegree[next]--
				if r.indegree[next] == 0 {
					r.ready = append(r.ready, next)
				}
			}
		}
	}

	switch {
	case r.stopped.Load() && firstErr == nil:
		r.logger.Info(emitCtx, "execution stopped", "execution", r.executionID)
		return nil, ErrStopped
	case firstErr != nil:
		r.publish(emitCtx, events.NewExecutionError(r.executionID, r.wf.ID, firstErr.Error()))
		return nil, firstErr
	default:
		output := r.selectResult()
		r.publish(emitCtx, events.NewExecutionComplete(r.executionID, r.wf.ID, output))
		return output, nil
	}
}

// setup builds the adjacency indices, in-degree counters, seeded output
// table, and initial ready set in one pass over the workflow.
func (r *Runner) setup() {
	r.outputs = make(map[string]any, len(r.wf.Nodes))
	r.indegree = make(map[string]int, len(r.wf.Nodes))
	r.forward = make(map[string][]string, len(r.wf.Nodes))
	r.incoming = make(map[string][]string, len(r.wf.Nodes))

	for _, n := range r.wf.Nodes {
		r.indegree[n.ID] = 0
		if n.Type == workflow.KindInput {
			r.outputs[n.ID] = r.input
		}
	}
	for _, e := range r.wf.Edges {
		r.forward[e.Source] = append(r.forward[e.Source], e.Target)
		r.incoming[e.Target] = append(r.incoming[e.Target], e.Source)
		r.indegree[e.Target]++
	}
	for _, n := range r.wf.Nodes {
		if r.indegree[n.ID] == 0 {
			r.ready = append(r.ready, n.ID)
		}
	}
}

// dispatchBatch runs one batch. Workers pull node indices in FIFO order so a
// parallelism cap preserves ready-set ordering; results land in batch order.
func (r *Runner) dispatchBatch(ctx context.Context, batch []string, tc *tools.Context) []settled {
	results := make([]settled, len(batch))
	limit := r.maxParallel
	if limit <= 0 || limit > len(batch) {
		limit = len(batch)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = r.runNode(ctx, batch[i], tc)
			}
		}()
	}
	for i := range batch {
		indices <- i
	}
	close(indices)
	wg.Wait()
	return results
}

// runNode dispatches one node: cancellation checkpoint, node:start, input
// fan-in, dispatch. Outputs settled after a user stop are discarded.
func (r *Runner) runNode(ctx context.Context, nodeID string, tc *tools.Context) settled {
	if ctx.Err() != nil {
		return settled{nodeID: nodeID, notRun: true}
	}
	node, ok := r.wf.NodeByID(nodeID)
	if !ok {
		return settled{nodeID: nodeID, err: floerr.Newf(floerr.KindMissingNodeData, "node %s not in workflow", nodeID)}
	}

	emitCtx := context.WithoutCancel(ctx)
	r.publish(emitCtx, events.NewNodeStart(r.executionID, r.wf.ID, nodeID, node.Type))

	nodeTC := *tc
	nodeTC.NodeID = nodeID
	input := r.gatherInput(nodeID)
	output, err := r.dispatcher.Dispatch(ctx, node, input, &nodeTC)

	if r.stopped.Load() {
		return settled{nodeID: nodeID, discarded: true}
	}
	return settled{nodeID: nodeID, output: output, err: err}
}

// gatherInput applies the fan-in rules: no upstream means the execution
// input; one upstream passes its output verbatim; several yield a mapping
// keyed by each upstream's display label with later insertions winning.
func (r *Runner) gatherInput(nodeID string) any {
	sources := r.incoming[nodeID]
	switch len(sources) {
	case 0:
		return r.input
	case 1:
		return r.outputs[sources[0]]
	default:
		gathered := make(map[string]any, len(sources))
		for _, src := range sources {
			gathered[r.labelOf(src)] = r.outputs[src]
		}
		return gathered
	}
}

// selectResult applies the result selection rules over output-kind nodes,
// falling back to the graph's terminal nodes.
func (r *Runner) selectResult() any {
	var outputNodes []workflow.Node
	for _, n := range r.wf.Nodes {
		if n.Type == workflow.KindOutput {
			outputNodes = append(outputNodes, n)
		}
	}
	if len(outputNodes) == 0 {
		for _, n := range r.wf.Nodes {
			if len(r.forward[n.ID]) == 0 {
				outputNodes = append(outputNodes, n)
			}
		}
	}
	switch len(outputNodes) {
	case 0:
		return nil
	case 1:
		return r.outputs[outputNodes[0].ID]
	default:
		result := make(map[string]any, len(outputNodes))
		for _, n := range outputNodes {
			result[n.DisplayLabel()] = r.outputs[n.ID]
		}
		return result
	}
}

func (r *Runner) labelOf(nodeID string) string {
	if n, ok := r.wf.NodeByID(nodeID); ok {
		return n.DisplayLabel()
	}
	return nodeID
}

// executionContext snapshots the per-execution tool context: merged
// variables-plus-input map and the configuration snapshot.
func (r *Runner) executionContext() *tools.Context {
	vars := make(map[string]any, len(r.wf.Variables))
	for k, v := range r.wf.Variables {
		vars[k] = v
	}
	if record, ok := r.input.(map[string]any); ok {
		for k, v := range record {
			vars[k] = v
		}
	}
	return &tools.Context{
		ExecutionID: r.executionID,
		WorkflowID:  r.wf.ID,
		Variables:   vars,
		Config:      r.cfg,
		Emit: func(event string, data map[string]any) {
			r.publish(context.WithoutCancel(context.Background()),
				events.NewLog(r.executionID, r.wf.ID, execution.LogInfo, "", event, data))
		},
	}
}

// publish sends an event to the bus. Delivery failures are logged and
// suppressed: persistence problems must not abort the in-memory execution.
func (r *Runner) publish(ctx context.Context, ev events.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, ev); err != nil {
		r.logger.Error(ctx, err, "event delivery failed",
			"execution", r.executionID, "event", string(ev.Type()))
	}
}
