package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd-dev/flowd/runtime/floerr"
)

const workflowJSON = `{
	"id": "wf-1",
	"name": "Scrape and summarize",
	"nodes": [
		{"id": "in", "type": "input", "label": "Input"},
		{"id": "t", "type": "transform", "label": "Double", "data": {"transform": "input * 2", "color": "red"}},
		{"id": "out", "type": "output", "label": "Output", "position": {"x": 10, "y": 20}}
	],
	"edges": [
		{"id": "e1", "source": "in", "target": "t"},
		{"id": "e2", "source": "t", "target": "out", "label": "result"}
	],
	"variables": {"region": "eu"}
}`

const workflowYAML = `id: wf-2
name: From YAML
nodes:
  - id: in
    type: input
    label: Input
  - id: out
    type: output
    label: Output
edges:
  - id: e1
    source: in
    target: out
`

func TestDecodeJSON(t *testing.T) {
	w, err := Decode([]byte(workflowJSON))
	require.NoError(t, err)
	assert.Equal(t, "wf-1", w.ID)
	require.Len(t, w.Nodes, 3)
	require.Len(t, w.Edges, 2)
	assert.Equal(t, KindTransform, w.Nodes[1].Type)
	assert.Equal(t, "eu", w.Variables["region"])
	require.NoError(t, Validate(w))
}

func TestDecodeYAML(t *testing.T) {
	w, err := Decode([]byte(workflowYAML))
	require.NoError(t, err)
	assert.Equal(t, "wf-2", w.ID)
	require.Len(t, w.Nodes, 2)
	assert.Equal(t, KindInput, w.Nodes[0].Type)
	require.NoError(t, Validate(w))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not a workflow"))
	require.Error(t, err)
}

func TestDataPreservesUnknownFields(t *testing.T) {
	w, err := Decode([]byte(workflowJSON))
	require.NoError(t, err)

	// The transform node carries an editor-only "color" field; it must survive
	// a marshal round trip untouched.
	encoded, err := json.Marshal(w.Nodes[1])
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(encoded, &raw))
	data := raw["data"].(map[string]any)
	assert.Equal(t, "red", data["color"])

	td, err := w.Nodes[1].TransformData()
	require.NoError(t, err)
	assert.Equal(t, "input * 2", td.Transform)
}

func TestDataAccessorsRequireFields(t *testing.T) {
	cases := []struct {
		name string
		node Node
		call func(Node) error
	}{
		{"tool without toolId", Node{ID: "n", Type: KindTool, Data: MustData(map[string]any{})}, func(n Node) error {
			_, err := n.ToolData()
			return err
		}},
		{"condition without expression", Node{ID: "n", Type: KindCondition}, func(n Node) error {
			_, err := n.ConditionData()
			return err
		}},
		{"loop without loopType", Node{ID: "n", Type: KindLoop}, func(n Node) error {
			_, err := n.LoopData()
			return err
		}},
		{"transform without expression", Node{ID: "n", Type: KindTransform}, func(n Node) error {
			_, err := n.TransformData()
			return err
		}},
		{"prompt without template", Node{ID: "n", Type: KindPrompt}, func(n Node) error {
			_, err := n.PromptData()
			return err
		}},
		{"code without source", Node{ID: "n", Type: KindCode}, func(n Node) error {
			_, err := n.CodeData()
			return err
		}},
		{"http without url", Node{ID: "n", Type: KindHTTP}, func(n Node) error {
			_, err := n.HTTPData()
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call(tc.node)
			require.Error(t, err)
			assert.True(t, floerr.Is(err, floerr.KindMissingNodeData))
		})
	}
}

func TestDisplayLabelFallsBackToID(t *testing.T) {
	assert.Equal(t, "pretty", Node{ID: "n1", Label: "pretty"}.DisplayLabel())
	assert.Equal(t, "n1", Node{ID: "n1"}.DisplayLabel())
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("webhook").Valid())
}

func TestCloneIsDeep(t *testing.T) {
	w, err := Decode([]byte(workflowJSON))
	require.NoError(t, err)
	dup, err := w.Clone()
	require.NoError(t, err)
	dup.Nodes[0].ID = "mutated"
	dup.Variables["region"] = "us"
	assert.Equal(t, "in", w.Nodes[0].ID)
	assert.Equal(t, "eu", w.Variables["region"])
}
