// Package dispatch realizes per-kind node semantics: it maps a node, its
// gathered input value, and an execution context to the node's output value.
// The runner drives it; the dispatcher consults the tool registry and the
// model gateway as the node kind requires.
package dispatch

import (
	"context"

	"github.com/flowd-dev/flowd/features/model"
	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/telemetry"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/tools"
)

type (
	// ModelGateway is the chat contract the agent dispatcher depends on.
	// Production wiring passes the gateway package's Gateway; tests pass fakes.
	ModelGateway interface {
		Chat(ctx context.Context, req model.Request) (*model.Response, error)
	}

	// Options configures a Dispatcher.
	Options struct {
		// Registry resolves tool nodes. Required when the workflow uses tool,
		// http, sensor, or python code nodes.
		Registry *tools.Registry
		// Gateway serves agent nodes.
		Gateway ModelGateway
		// Logger receives dispatch diagnostics. Nil means silent.
		Logger telemetry.Logger
		// Metrics counts dispatches. Nil disables counting.
		Metrics *telemetry.Metrics
	}

	// Dispatcher executes single nodes.
	Dispatcher struct {
		registry *tools.Registry
		gateway  ModelGateway
		logger   telemetry.Logger
		metrics  *telemetry.Metrics
	}
)

// New constructs a Dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Dispatcher{
		registry: opts.Registry,
		gateway:  opts.Gateway,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Dispatch runs one node. Cancellation is observed before any work starts;
// kind-specific checkpoints (loop iterations, awaited I/O) re-check inside.
func (d *Dispatcher) Dispatch(ctx context.Context, node workflow.Node, input any, tc *tools.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, floerr.Wrap(floerr.KindCancelled, "dispatch aborted", err).WithNode(node.ID)
	}
	d.metrics.RecordNodeDispatch(ctx, string(node.Type))
	d.logger.Debug(ctx, "dispatching node", "node", node.ID, "kind", string(node.Type))

	switch node.Type {
	case workflow.KindInput, workflow.KindOutput, workflow.KindParallel:
		// Pass-through kinds. Parallel fan-out is the scheduler's job; these
		// nodes forward the gathered value unchanged.
		return input, nil

	case workflow.KindMerge:
		return mergeValue(input), nil

	case workflow.KindAgent:
		return d.dispatchAgent(ctx, node, input, tc)

	case workflow.KindTool:
		return d.dispatchTool(ctx, node, input, tc)

	case workflow.KindCondition:
		return d.dispatchCondition(ctx, node, input)

	case workflow.KindLoop:
		return d.dispatchLoop(ctx, node, input)

	case workflow.KindTransform:
		return d.dispatchTransform(ctx, node, input)

	case workflow.KindPrompt:
		return dispatchPrompt(node, input)

	case workflow.KindCode:
		return d.dispatchCode(ctx, node, input, tc)

	case workflow.KindHTTP:
		return d.dispatchHTTP(ctx, node, input, tc)

	case workflow.KindSensor:
		return d.dispatchSensor(ctx, node, input, tc)

	default:
		return nil, floerr.Newf(floerr.KindMissingNodeData, "unsupported node kind %q", node.Type).WithNode(node.ID)
	}
}

// mergeValue flattens a sequence one level and returns anything else
// unchanged.
func mergeValue(input any) any {
	items, ok := input.([]any)
	if !ok {
		return input
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		if nested, ok := item.([]any); ok {
			out = append(out, nested...)
			continue
		}
		out = append(out, item)
	}
	return out
}
