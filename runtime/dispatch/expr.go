package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/expr-lang/expr"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/workflow"
)

// exprTimeout bounds a single user expression evaluation.
const exprTimeout = 5 * time.Second

// evalExpr evaluates a user expression over the gathered input. The sandbox is
// the expr language itself: a whitelisted expression grammar with no ambient
// authority, so network, filesystem, and timer access cannot be expressed.
// The sole input binding is "input"; the ctx binding carries the timeout.
func evalExpr(ctx context.Context, code string, input any) (any, error) {
	env := map[string]any{
		"input": input,
		"ctx":   ctx,
	}
	program, err := expr.Compile(code, expr.Env(env), expr.WithContext("ctx"))
	if err != nil {
		return nil, floerr.Wrapf(floerr.KindExpressionError, err, "compile expression %q", code)
	}
	evalCtx, cancel := context.WithTimeout(ctx, exprTimeout)
	defer cancel()
	env["ctx"] = evalCtx
	out, err := expr.Run(program, env)
	if err != nil {
		if evalCtx.Err() != nil && ctx.Err() == nil {
			return nil, floerr.Wrap(floerr.KindExpressionError, "expression timed out", evalCtx.Err())
		}
		return nil, floerr.Wrapf(floerr.KindExpressionError, err, "evaluate expression %q", code)
	}
	return out, nil
}

// dispatchCondition evaluates the node expression and enforces a boolean
// result.
func (d *Dispatcher) dispatchCondition(ctx context.Context, node workflow.Node, input any) (any, error) {
	data, err := node.ConditionData()
	if err != nil {
		return nil, err
	}
	out, err := evalExpr(ctx, data.Condition, input)
	if err != nil {
		return nil, wrapNode(err, node.ID)
	}
	result, ok := out.(bool)
	if !ok {
		return nil, floerr.Newf(floerr.KindExpressionError,
			"condition %q evaluated to %T, want bool", data.Condition, out).WithNode(node.ID)
	}
	return result, nil
}

// dispatchTransform evaluates the node expression and returns its value.
func (d *Dispatcher) dispatchTransform(ctx context.Context, node workflow.Node, input any) (any, error) {
	data, err := node.TransformData()
	if err != nil {
		return nil, err
	}
	out, err := evalExpr(ctx, data.Transform, input)
	if err != nil {
		return nil, wrapNode(err, node.ID)
	}
	return out, nil
}

// wrapNode annotates a structured error with the failing node id.
func wrapNode(err error, nodeID string) error {
	var fe *floerr.Error
	if errors.As(err, &fe) && fe.NodeID() == "" {
		return fe.WithNode(nodeID)
	}
	return err
}
