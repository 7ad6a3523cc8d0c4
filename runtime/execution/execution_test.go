package execution

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeStatusTransitionsAreMonotonic(t *testing.T) {
	cases := []struct {
		from, to NodeStatus
		ok       bool
	}{
		{NodePending, NodeRunning, true},
		{NodePending, NodeSkipped, true},
		{NodeRunning, NodeCompleted, true},
		{NodeRunning, NodeError, true},
		{NodeCompleted, NodeRunning, false},
		{NodeCompleted, NodePending, false},
		{NodeError, NodeCompleted, false},
		{NodeSkipped, NodeRunning, false},
		{NodeRunning, NodePending, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to))
		})
	}
}

func TestZeroNodeStatusAdmitsAnyTransition(t *testing.T) {
	var zero NodeStatus
	assert.True(t, zero.CanTransition(NodeRunning))
	assert.True(t, zero.CanTransition(NodeCompleted))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusStopped.Terminal())
}

func TestAppendLogBoundsWindow(t *testing.T) {
	e := &Execution{ID: "x"}
	for i := 0; i < MaxRecentLogLines+50; i++ {
		e.AppendLog(LogLine{Level: LogInfo, Message: fmt.Sprintf("line %d", i)})
	}
	require.Len(t, e.Logs, MaxRecentLogLines)
	// Oldest lines are evicted first.
	assert.Equal(t, "line 50", e.Logs[0].Message)
}

func TestNodeStateIsCreatedLazily(t *testing.T) {
	e := &Execution{ID: "x"}
	require.Empty(t, e.NodeStates)
	ns := e.NodeState("a")
	require.NotNil(t, ns)
	assert.Equal(t, NodePending, ns.Status)
	// Same entry on repeat access.
	ns.Status = NodeRunning
	assert.Equal(t, NodeRunning, e.NodeState("a").Status)
	assert.Len(t, e.NodeStates, 1)
}
