package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd-dev/flowd/runtime/workflow"
)

func TestPublishReachesAllSinks(t *testing.T) {
	bus := NewBus()
	var got []Type
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		_, err := bus.Register(SinkFunc(func(_ context.Context, ev Event) error {
			mu.Lock()
			got = append(got, ev.Type())
			mu.Unlock()
			return nil
		}))
		require.NoError(t, err)
	}
	require.NoError(t, bus.Publish(context.Background(), NewNodeStart("e", "w", "n", workflow.KindInput)))
	assert.Len(t, got, 3)
}

func TestPublishAttemptsEverySinkDespiteErrors(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	delivered := false
	_, err := bus.Register(SinkFunc(func(context.Context, Event) error { return boom }))
	require.NoError(t, err)
	_, err = bus.Register(SinkFunc(func(context.Context, Event) error {
		delivered = true
		return nil
	}))
	require.NoError(t, err)

	err = bus.Publish(context.Background(), NewLog("e", "w", "info", "", "hello", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, delivered, "second sink must still receive the event")
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	count := 0
	sub, err := bus.Register(SinkFunc(func(context.Context, Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), NewExecutionComplete("e", "w", 42)))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close()) // idempotent
	require.NoError(t, bus.Publish(context.Background(), NewExecutionComplete("e", "w", 42)))
	assert.Equal(t, 1, count)
}

func TestRegisterRejectsNilSink(t *testing.T) {
	_, err := NewBus().Register(nil)
	require.Error(t, err)
}

func TestEventAccessors(t *testing.T) {
	ev := NewNodeComplete("exec-1", "wf-1", "n1", map[string]any{"v": 1})
	assert.Equal(t, TypeNodeComplete, ev.Type())
	assert.Equal(t, "exec-1", ev.ExecutionID())
	assert.Equal(t, "wf-1", ev.WorkflowID())
	payload, ok := ev.Payload().(NodeCompletePayload)
	require.True(t, ok)
	assert.Equal(t, "n1", payload.NodeID)
}
