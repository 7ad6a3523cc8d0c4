package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd-dev/flowd/runtime/floerr"
)

func node(id string, kind Kind) Node {
	return Node{ID: id, Type: kind, Label: id}
}

func edge(id, source, target string) Edge {
	return Edge{ID: id, Source: source, Target: target}
}

func TestValidateAcceptsLinearChain(t *testing.T) {
	w := &Workflow{
		ID: "wf",
		Nodes: []Node{
			node("a", KindInput),
			node("b", KindTransform),
			node("c", KindOutput),
		},
		Edges: []Edge{edge("e1", "a", "b"), edge("e2", "b", "c")},
	}
	require.NoError(t, Validate(w))
}

func TestValidateAcceptsDisconnectedNodes(t *testing.T) {
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{node("a", KindInput), node("b", KindOutput), node("orphan", KindTransform)},
		Edges: []Edge{edge("e1", "a", "b")},
	}
	require.NoError(t, Validate(w))
}

func TestValidateRejectsDanglingEdgeSource(t *testing.T) {
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{node("a", KindInput)},
		Edges: []Edge{edge("e1", "ghost", "a")},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.True(t, floerr.Is(err, floerr.KindDanglingEdge))
	assert.Contains(t, err.Error(), "ghost")
	assert.Contains(t, err.Error(), "e1")
}

func TestValidateRejectsDanglingEdgeTarget(t *testing.T) {
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{node("a", KindInput)},
		Edges: []Edge{edge("e1", "a", "missing")},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.True(t, floerr.Is(err, floerr.KindDanglingEdge))
	assert.Contains(t, err.Error(), "missing")
}

func TestValidateRejectsCycle(t *testing.T) {
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{node("a", KindInput), node("b", KindTransform), node("c", KindTransform)},
		Edges: []Edge{edge("e1", "a", "b"), edge("e2", "b", "c"), edge("e3", "c", "b")},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.True(t, floerr.Is(err, floerr.KindCycleDetected))
}

func TestValidateRejectsSelfLoop(t *testing.T) {
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{node("a", KindTransform)},
		Edges: []Edge{edge("e1", "a", "a")},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.True(t, floerr.Is(err, floerr.KindCycleDetected))
}

func TestValidateRejectsDuplicateNodeIDs(t *testing.T) {
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{node("a", KindInput), node("a", KindOutput)},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.True(t, floerr.Is(err, floerr.KindDuplicateNode))
	assert.Contains(t, err.Error(), `"a"`)
}

func TestValidateIsIdempotent(t *testing.T) {
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{node("a", KindInput), node("b", KindOutput)},
		Edges: []Edge{edge("e1", "a", "b")},
	}
	require.NoError(t, Validate(w))
	require.NoError(t, Validate(w))
}
