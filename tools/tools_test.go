package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd-dev/flowd/runtime/floerr"
)

func echoHandle(id string) *Handle {
	return &Handle{
		ID:   id,
		Name: id,
		Invoke: func(_ context.Context, input map[string]any, _ *Context) (any, error) {
			return input, nil
		},
	}
}

func TestRegisterRejectsIncompleteHandles(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&Handle{Name: "anonymous", Invoke: echoHandle("x").Invoke}))
	assert.Error(t, r.Register(&Handle{ID: "no-invoke"}))
}

func TestRegisterCompilesSchemaEagerly(t *testing.T) {
	r := NewRegistry()
	h := echoHandle("strict")
	h.InputSchema = []byte(`{"type": "object", "required": ["url"], "properties": {"url": {"type": "string"}}}`)
	require.NoError(t, r.Register(h))

	bad := echoHandle("broken")
	bad.InputSchema = []byte(`{"type": 12}`)
	assert.Error(t, r.Register(bad))
}

func TestInvokeValidatesInput(t *testing.T) {
	r := NewRegistry()
	h := echoHandle("strict")
	h.InputSchema = []byte(`{"type": "object", "required": ["url"], "properties": {"url": {"type": "string"}}}`)
	require.NoError(t, r.Register(h))

	out, err := r.Invoke(context.Background(), "strict", map[string]any{"url": "https://example.com"}, &Context{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"url": "https://example.com"}, out)

	_, err = r.Invoke(context.Background(), "strict", map[string]any{"url": 7}, &Context{})
	require.Error(t, err)
	_, err = r.Invoke(context.Background(), "strict", map[string]any{}, &Context{})
	require.Error(t, err)
}

func TestInvokeUnknownTool(t *testing.T) {
	_, err := NewRegistry().Invoke(context.Background(), "ghost", nil, &Context{})
	require.Error(t, err)
	assert.True(t, floerr.Is(err, floerr.KindUnknownTool))
}

func TestListOrdersByID(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(echoHandle(id)))
	}
	handles := r.List()
	require.Len(t, handles, 3)
	assert.Equal(t, "alpha", handles[0].ID)
	assert.Equal(t, "mid", handles[1].ID)
	assert.Equal(t, "zeta", handles[2].ID)
}
