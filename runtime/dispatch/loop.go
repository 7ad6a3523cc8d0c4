package dispatch

import (
	"context"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/workflow"
)

// maxLoopIterations is the hard safety cap on loop emissions. It bounds
// "while" loops whose condition never turns false and oversized "for" counts.
const maxLoopIterations = 10_000

// dispatchLoop produces the list of per-iteration items. Downstream nodes
// receive the whole list as a single value; the scheduler does not fan out
// per iteration. Cancellation is checked between iterations.
func (d *Dispatcher) dispatchLoop(ctx context.Context, node workflow.Node, input any) (any, error) {
	data, err := node.LoopData()
	if err != nil {
		return nil, err
	}

	switch data.LoopType {
	case "for":
		count := data.LoopConfig.Count
		if count < 0 {
			count = 0
		}
		if count > maxLoopIterations {
			count = maxLoopIterations
		}
		items := make([]any, 0, count)
		for i := 0; i < count; i++ {
			if err := ctx.Err(); err != nil {
				return nil, floerr.Wrap(floerr.KindCancelled, "loop aborted", err).WithNode(node.ID)
			}
			items = append(items, map[string]any{"index": i, "input": input})
		}
		return items, nil

	case "forEach":
		source := input
		if len(data.LoopConfig.Items) > 0 {
			source = []any(data.LoopConfig.Items)
		}
		seq, ok := source.([]any)
		if !ok {
			seq = []any{source}
		}
		items := make([]any, 0, len(seq))
		for _, item := range seq {
			if err := ctx.Err(); err != nil {
				return nil, floerr.Wrap(floerr.KindCancelled, "loop aborted", err).WithNode(node.ID)
			}
			items = append(items, item)
		}
		return items, nil

	case "while":
		condition := data.LoopConfig.Condition
		if condition == "" {
			return nil, floerr.New(floerr.KindMissingNodeData, "while loop requires loopConfig.condition").WithNode(node.ID)
		}
		var items []any
		for i := 0; i < maxLoopIterations; i++ {
			if err := ctx.Err(); err != nil {
				return nil, floerr.Wrap(floerr.KindCancelled, "loop aborted", err).WithNode(node.ID)
			}
			out, err := evalExpr(ctx, condition, input)
			if err != nil {
				return nil, wrapNode(err, node.ID)
			}
			proceed, ok := out.(bool)
			if !ok {
				return nil, floerr.Newf(floerr.KindExpressionError,
					"while condition %q evaluated to %T, want bool", condition, out).WithNode(node.ID)
			}
			if !proceed {
				break
			}
			items = append(items, map[string]any{"index": i, "input": input})
		}
		if items == nil {
			items = []any{}
		}
		return items, nil

	default:
		return nil, floerr.Newf(floerr.KindMissingNodeData, "unsupported loopType %q", data.LoopType).WithNode(node.ID)
	}
}
