// Package engine is the process-wide orchestrator. It starts executions,
// tracks active runners, and bridges runner events to persistence and to the
// external event sink.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowd-dev/flowd/config"
	"github.com/flowd-dev/flowd/runtime/events"
	"github.com/flowd-dev/flowd/runtime/execution"
	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/runner"
	"github.com/flowd-dev/flowd/runtime/telemetry"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/store"
)

// ErrTooManyExecutions indicates the configured concurrent execution cap is
// reached; the caller may retry once an active execution terminates.
var ErrTooManyExecutions = errors.New("engine: max concurrent executions reached")

type (
	// Options configures an Engine. All collaborators are injected; tests
	// construct an Engine with fakes per case.
	Options struct {
		// Store is the durable persistence layer. Required.
		Store store.Store
		// Dispatcher executes nodes. Required.
		Dispatcher runner.NodeDispatcher
		// Source supplies the live configuration. Required.
		Source *config.Source
		// Sink receives the event stream for external consumers. Optional.
		Sink events.Sink
		// Logger receives engine diagnostics. Nil means silent.
		Logger telemetry.Logger
		// Metrics counts terminal executions. Nil disables counting.
		Metrics *telemetry.Metrics
	}

	// Engine owns the active-executions map.
	Engine struct {
		store      store.Store
		dispatcher runner.NodeDispatcher
		source     *config.Source
		sink       events.Sink
		logger     telemetry.Logger
		metrics    *telemetry.Metrics

		mu     sync.Mutex
		active map[string]*activeRun
	}

	activeRun struct {
		runner *runner.Runner
		done   chan struct{}
	}
)

// New constructs an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Engine{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		source:     opts.Source,
		sink:       opts.Sink,
		logger:     logger,
		metrics:    opts.Metrics,
		active:     make(map[string]*activeRun),
	}
}

// ExecuteWorkflow loads and validates the workflow, persists an initial
// running execution, launches the runner asynchronously, and returns the
// execution record immediately. Validation failures surface synchronously and
// create no execution record.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, input any) (*execution.Execution, error) {
	cfg := e.source.Snapshot()

	w, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, floerr.Newf(floerr.KindUnknownWorkflow, "workflow %s not found", workflowID)
		}
		return nil, err
	}
	if err := workflow.Validate(w); err != nil {
		return nil, err
	}

	exec := &execution.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     execution.StatusRunning,
		Input:      input,
		StartedAt:  time.Now().UTC(),
	}

	e.mu.Lock()
	if limit := cfg.MaxConcurrentExecutions; limit > 0 && len(e.active) >= limit {
		e.mu.Unlock()
		return nil, ErrTooManyExecutions
	}
	// Reserve the slot before the storage write so a burst of callers cannot
	// oversubscribe the cap.
	run := &activeRun{done: make(chan struct{})}
	e.active[exec.ID] = run
	e.mu.Unlock()

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		e.deregister(exec.ID)
		return nil, err
	}

	bus := events.NewBus()
	bus.Register(events.SinkFunc(e.persistEvent))
	if e.sink != nil {
		bus.Register(e.sink)
	}

	r := runner.New(runner.Options{
		Workflow:           w,
		ExecutionID:        exec.ID,
		Input:              input,
		Dispatcher:         e.dispatcher,
		Bus:                bus,
		Config:             cfg,
		Logger:             e.logger,
		MaxNodeParallelism: cfg.MaxNodeParallelism,
	})
	run.runner = r

	runCtx := context.WithoutCancel(ctx)
	go e.drive(runCtx, r, exec.ID, run)

	return exec, nil
}

// drive runs the scheduler to termination and persists the terminal state.
// Terminal-write failures are fatal for the persisted view and are logged
// loudly; the in-memory execution has already finished.
func (e *Engine) drive(ctx context.Context, r *runner.Runner, executionID string, run *activeRun) {
	defer close(run.done)
	defer e.deregister(executionID)

	output, err := r.Run(ctx)
	now := time.Now().UTC()

	var upd store.ExecutionUpdate
	terminal := execution.StatusCompleted
	switch {
	case err == nil:
		upd = store.ExecutionUpdate{Status: &terminal, Output: output, OutputSet: true, CompletedAt: &now}
	case errors.Is(err, runner.ErrStopped):
		terminal = execution.StatusStopped
		upd = store.ExecutionUpdate{Status: &terminal, CompletedAt: &now}
	default:
		terminal = execution.StatusError
		msg := err.Error()
		upd = store.ExecutionUpdate{Status: &terminal, Error: &msg, CompletedAt: &now}
	}

	if _, err := e.store.UpdateExecution(ctx, executionID, upd); err != nil {
		e.logger.Error(ctx, err, "terminal execution write failed",
			"execution", executionID, "status", string(terminal))
	}
	e.metrics.RecordExecutionTerminal(ctx, string(terminal))
	e.logger.Info(ctx, "execution terminated",
		"execution", executionID, "status", string(terminal))
}

// persistEvent writes node transitions and log lines through to the Store.
// Failures are returned to the bus, where the runner logs and suppresses
// them: event-persistence errors do not abort the execution.
func (e *Engine) persistEvent(ctx context.Context, ev events.Event) error {
	switch t := ev.(type) {
	case events.NodeStart:
		return e.store.UpdateExecutionNodeState(ctx, ev.ExecutionID(), t.Data.NodeID, execution.NodeRunning, nil, "")
	case events.NodeComplete:
		return e.store.UpdateExecutionNodeState(ctx, ev.ExecutionID(), t.Data.NodeID, execution.NodeCompleted, t.Data.Output, "")
	case events.NodeError:
		return e.store.UpdateExecutionNodeState(ctx, ev.ExecutionID(), t.Data.NodeID, execution.NodeError, nil, t.Data.Error)
	case events.Log:
		return e.store.AppendLog(ctx, ev.ExecutionID(), t.Data.NodeID, t.Data.Level, t.Data.Message, t.Data.Data)
	default:
		// Terminal status is written by drive once the runner settles.
		return nil
	}
}

// StopExecution requests cooperative cancellation of an active execution and
// marks it stopped in the Store.
func (e *Engine) StopExecution(ctx context.Context, executionID string) error {
	e.mu.Lock()
	run, ok := e.active[executionID]
	e.mu.Unlock()
	if !ok {
		return floerr.Newf(floerr.KindUnknownWorkflow, "execution %s is not active", executionID)
	}
	if run.runner != nil {
		run.runner.Stop()
	}
	stopped := execution.StatusStopped
	now := time.Now().UTC()
	if _, err := e.store.UpdateExecution(ctx, executionID, store.ExecutionUpdate{
		Status:      &stopped,
		CompletedAt: &now,
	}); err != nil {
		return err
	}
	return nil
}

// Wait blocks until the execution terminates or ctx is done, then returns
// the persisted record.
func (e *Engine) Wait(ctx context.Context, executionID string) (*execution.Execution, error) {
	e.mu.Lock()
	run, ok := e.active[executionID]
	e.mu.Unlock()
	if ok {
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.store.GetExecution(ctx, executionID)
}

// ActiveCount reports the number of executions currently running.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Engine) deregister(executionID string) {
	e.mu.Lock()
	delete(e.active, executionID)
	e.mu.Unlock()
}
