package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/flowd-dev/flowd/runtime/floerr"
)

type (
	// Data is the kind-specific node configuration document. The raw document
	// is preserved verbatim so unknown fields survive store round trips; the
	// dispatcher projects it onto the typed record for the node kind and
	// ignores anything else.
	Data struct {
		raw json.RawMessage
	}

	// AgentData configures an agent node.
	AgentData struct {
		// Provider selects the model backend (openai, anthropic, groq, ollama).
		// Empty means the configured default provider.
		Provider string `json:"provider,omitempty"`
		// Model is the provider-specific model identifier. Empty means the
		// configured default model.
		Model string `json:"model,omitempty"`
		// SystemPrompt is prepended to every invocation.
		SystemPrompt string `json:"systemPrompt,omitempty"`
		// Temperature is the sampling temperature in [0,2].
		Temperature float64 `json:"temperature,omitempty"`
		// MaxTokens caps completion length. Must be >= 1 when set.
		MaxTokens int `json:"maxTokens,omitempty"`
	}

	// ToolData configures a tool node.
	ToolData struct {
		// ToolID names the registry entry to invoke.
		ToolID string `json:"toolId"`
		// ToolConfig is merged with {"input": <gathered>} before invocation.
		ToolConfig map[string]any `json:"toolConfig,omitempty"`
	}

	// ConditionData configures a condition node.
	ConditionData struct {
		// Condition is the user expression evaluated over the input.
		Condition string `json:"condition"`
	}

	// LoopData configures a loop node.
	LoopData struct {
		// LoopType is one of "for", "forEach", "while".
		LoopType string `json:"loopType"`
		// LoopConfig carries the per-type parameters.
		LoopConfig LoopConfig `json:"loopConfig,omitempty"`
	}

	// LoopConfig holds loop parameters; which fields apply depends on LoopType.
	LoopConfig struct {
		// Count is the iteration count for "for" loops.
		Count int `json:"count,omitempty"`
		// Condition is the continuation expression for "while" loops.
		Condition string `json:"condition,omitempty"`
		// Items optionally overrides the iterated sequence for "forEach" loops.
		Items []any `json:"items,omitempty"`
	}

	// TransformData configures a transform node.
	TransformData struct {
		// Transform is the user expression evaluated over the input.
		Transform string `json:"transform"`
	}

	// PromptData configures a prompt node.
	PromptData struct {
		// PromptTemplate is rendered with {{input}} and {{name}} placeholders.
		PromptTemplate string `json:"promptTemplate"`
		// Variables names the input-record fields available as placeholders.
		Variables []string `json:"variables,omitempty"`
	}

	// CodeData configures a code node.
	CodeData struct {
		// Language is one of "javascript", "typescript", "python".
		Language string `json:"language"`
		// Code is the user source evaluated in the sandbox.
		Code string `json:"code"`
	}

	// HTTPData configures an http node.
	HTTPData struct {
		// URL is the request target; {{name}} placeholders are interpolated
		// from input-record fields.
		URL string `json:"url"`
		// Method is one of GET, POST, PUT, DELETE, PATCH. Empty means GET.
		Method string `json:"method,omitempty"`
		// Headers are sent verbatim.
		Headers map[string]string `json:"headers,omitempty"`
		// Body is the request body; string bodies are interpolated like URL.
		Body any `json:"body,omitempty"`
	}

	// SensorData configures a sensor node.
	SensorData struct {
		// SensorID names the registered sensor tool to delegate to.
		SensorID string `json:"sensorId,omitempty"`
	}
)

// NewData builds a Data document from any JSON-serializable value.
func NewData(v any) (Data, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Data{}, fmt.Errorf("encode node data: %w", err)
	}
	return Data{raw: raw}, nil
}

// MustData builds a Data document and panics on encoding failure. Intended for
// tests and static workflow construction.
func MustData(v any) Data {
	d, err := NewData(v)
	if err != nil {
		panic(err)
	}
	return d
}

// MarshalJSON writes the preserved document verbatim.
func (d Data) MarshalJSON() ([]byte, error) {
	if len(d.raw) == 0 {
		return []byte("{}"), nil
	}
	return d.raw, nil
}

// UnmarshalJSON stores the document verbatim.
func (d *Data) UnmarshalJSON(doc []byte) error {
	d.raw = append(d.raw[:0], doc...)
	return nil
}

// IsZero reports whether the document is empty.
func (d Data) IsZero() bool {
	return len(d.raw) == 0
}

// Decode projects the document onto the given typed record. Fields not present
// in the record are ignored.
func (d Data) Decode(v any) error {
	if len(d.raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(d.raw, v); err != nil {
		return floerr.Wrap(floerr.KindCorruptRecord, "decode node data", err)
	}
	return nil
}

// AgentData decodes the document as agent configuration.
func (n Node) AgentData() (AgentData, error) {
	var data AgentData
	err := n.Data.Decode(&data)
	return data, err
}

// ToolData decodes the document as tool configuration. A missing toolId is a
// MissingNodeData failure.
func (n Node) ToolData() (ToolData, error) {
	var data ToolData
	if err := n.Data.Decode(&data); err != nil {
		return data, err
	}
	if data.ToolID == "" {
		return data, floerr.New(floerr.KindMissingNodeData, "tool node requires toolId").WithNode(n.ID)
	}
	return data, nil
}

// ConditionData decodes the document as condition configuration.
func (n Node) ConditionData() (ConditionData, error) {
	var data ConditionData
	if err := n.Data.Decode(&data); err != nil {
		return data, err
	}
	if data.Condition == "" {
		return data, floerr.New(floerr.KindMissingNodeData, "condition node requires condition").WithNode(n.ID)
	}
	return data, nil
}

// LoopData decodes the document as loop configuration.
func (n Node) LoopData() (LoopData, error) {
	var data LoopData
	if err := n.Data.Decode(&data); err != nil {
		return data, err
	}
	if data.LoopType == "" {
		return data, floerr.New(floerr.KindMissingNodeData, "loop node requires loopType").WithNode(n.ID)
	}
	return data, nil
}

// TransformData decodes the document as transform configuration.
func (n Node) TransformData() (TransformData, error) {
	var data TransformData
	if err := n.Data.Decode(&data); err != nil {
		return data, err
	}
	if data.Transform == "" {
		return data, floerr.New(floerr.KindMissingNodeData, "transform node requires transform").WithNode(n.ID)
	}
	return data, nil
}

// PromptData decodes the document as prompt configuration.
func (n Node) PromptData() (PromptData, error) {
	var data PromptData
	if err := n.Data.Decode(&data); err != nil {
		return data, err
	}
	if data.PromptTemplate == "" {
		return data, floerr.New(floerr.KindMissingNodeData, "prompt node requires promptTemplate").WithNode(n.ID)
	}
	return data, nil
}

// CodeData decodes the document as code configuration.
func (n Node) CodeData() (CodeData, error) {
	var data CodeData
	if err := n.Data.Decode(&data); err != nil {
		return data, err
	}
	if data.Code == "" {
		return data, floerr.New(floerr.KindMissingNodeData, "code node requires code").WithNode(n.ID)
	}
	return data, nil
}

// HTTPData decodes the document as http configuration.
func (n Node) HTTPData() (HTTPData, error) {
	var data HTTPData
	if err := n.Data.Decode(&data); err != nil {
		return data, err
	}
	if data.URL == "" {
		return data, floerr.New(floerr.KindMissingNodeData, "http node requires url").WithNode(n.ID)
	}
	return data, nil
}

// SensorData decodes the document as sensor configuration.
func (n Node) SensorData() (SensorData, error) {
	var data SensorData
	err := n.Data.Decode(&data)
	return data, err
}
