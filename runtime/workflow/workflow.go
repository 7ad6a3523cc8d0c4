// Package workflow defines the persisted workflow data model: a named DAG of
// typed nodes connected by directed edges, plus the structural validation the
// runtime performs before accepting a graph for execution.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Workflow is a named, versionless DAG record. Node and edge identifiers
	// are immutable and unique within the workflow.
	Workflow struct {
		// ID is the opaque unique workflow identifier.
		ID string `json:"id"`
		// Name is the display name.
		Name string `json:"name"`
		// Description optionally documents the workflow.
		Description string `json:"description,omitempty"`
		// Nodes is the ordered list of nodes.
		Nodes []Node `json:"nodes"`
		// Edges is the ordered list of directed edges.
		Edges []Edge `json:"edges"`
		// Variables is a free-form map merged into every execution context.
		Variables map[string]any `json:"variables,omitempty"`
		// Metadata carries optional free-form annotations.
		Metadata map[string]any `json:"metadata,omitempty"`
		// CreatedAt is the creation timestamp.
		CreatedAt time.Time `json:"createdAt"`
		// UpdatedAt is the last-modification timestamp. Edits that overwrite
		// nodes/edges advance it.
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Node is a unit of computation parameterized by its kind and a kind-specific
	// data record.
	Node struct {
		// ID is unique within the owning workflow.
		ID string `json:"id"`
		// Type selects the node kind from the closed set.
		Type Kind `json:"type"`
		// Label is the display label. The runner uses it as the fan-in key for
		// multi-parent inputs, falling back to ID when empty.
		Label string `json:"label"`
		// Position is an editor layout hint, ignored by the runtime.
		Position *Position `json:"position,omitempty"`
		// Data is the kind-specific configuration document.
		Data Data `json:"data,omitempty"`
	}

	// Edge is a directed dependency: the target's dispatch requires the source's
	// completed output. Ports are advisory; every edge into a node contributes
	// one upstream value.
	Edge struct {
		ID string `json:"id"`
		// Source is the upstream node id.
		Source string `json:"source"`
		// Target is the downstream node id.
		Target string `json:"target"`
		// SourceHandle is an optional source-port label.
		SourceHandle string `json:"sourceHandle,omitempty"`
		// TargetHandle is an optional target-port label.
		TargetHandle string `json:"targetHandle,omitempty"`
		// Label is an optional human label.
		Label string `json:"label,omitempty"`
	}

	// Position is an editor layout hint.
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Kind enumerates the closed set of node kinds.
	Kind string
)

// Node kinds.
const (
	KindInput     Kind = "input"
	KindOutput    Kind = "output"
	KindAgent     Kind = "agent"
	KindTool      Kind = "tool"
	KindCondition Kind = "condition"
	KindLoop      Kind = "loop"
	KindParallel  Kind = "parallel"
	KindMerge     Kind = "merge"
	KindTransform Kind = "transform"
	KindPrompt    Kind = "prompt"
	KindCode      Kind = "code"
	KindHTTP      Kind = "http"
	KindSensor    Kind = "sensor"
)

// Kinds returns the closed set of node kinds in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindInput, KindOutput, KindAgent, KindTool, KindCondition, KindLoop,
		KindParallel, KindMerge, KindTransform, KindPrompt, KindCode, KindHTTP,
		KindSensor,
	}
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// DisplayLabel returns the node label, falling back to the node id.
func (n Node) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Decode parses a workflow document. JSON is tried first; documents that are
// not JSON are decoded as YAML. The decoded workflow is not validated; run
// Validate before executing it.
func Decode(doc []byte) (*Workflow, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("workflow document is empty")
	}
	var w Workflow
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, fmt.Errorf("decode workflow JSON: %w", err)
		}
		return &w, nil
	}
	// YAML documents are converted to JSON so the Data codec sees the same
	// wire shape regardless of the source format.
	var raw map[string]any
	if err := yaml.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode workflow YAML: %w", err)
	}
	jsonDoc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert workflow YAML: %w", err)
	}
	if err := json.Unmarshal(jsonDoc, &w); err != nil {
		return nil, fmt.Errorf("decode workflow document: %w", err)
	}
	return &w, nil
}

// Clone returns a deep copy of the workflow via a JSON round trip. Runners
// snapshot the workflow at execution start so concurrent edits cannot perturb
// in-flight scheduling.
func (w *Workflow) Clone() (*Workflow, error) {
	doc, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("clone workflow: %w", err)
	}
	var dup Workflow
	if err := json.Unmarshal(doc, &dup); err != nil {
		return nil, fmt.Errorf("clone workflow: %w", err)
	}
	return &dup, nil
}

// NodeByID returns the node with the given id, if present.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
