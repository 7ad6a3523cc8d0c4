package main

import (
	"flag"
	"strings"

	"github.com/google/uuid"

	"github.com/flowd-dev/flowd/config"
	"github.com/flowd-dev/flowd/features/model"
	"github.com/flowd-dev/flowd/features/model/gateway"
	"github.com/flowd-dev/flowd/runtime/telemetry"
	"github.com/flowd-dev/flowd/runtime/workflow"
)

// generateSystemPrompt instructs the model to produce a bare workflow
// document the validator can accept.
const generateSystemPrompt = `You generate workflow definitions for an automation platform.
Respond with a single JSON object and nothing else: no prose, no code fences.
The object has keys "name", "nodes" and "edges".
Each node has "id", "type", "label" and "data". Valid types: input, output,
agent, tool, condition, loop, parallel, merge, transform, prompt, code, http, sensor.
Each edge has "id", "source" and "target" referencing node ids.
The graph must be acyclic and every workflow needs one input and one output node.`

// cmdGenerate asks a model for a workflow document, validates it, and writes
// it out. Generator output is never accepted unvalidated.
func cmdGenerate(args []string) int {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	provider := fs.String("provider", "", "model provider to use (defaults to the configured default)")
	outputPath := fs.String("output", "", "write the workflow document to this path instead of stdout")
	if err := fs.Parse(args); err != nil {
		return exitUserError
	}
	if fs.NArg() != 1 {
		return fail(exitUserError, "generate: exactly one prompt is required")
	}

	ctx := logContext(false)
	source, err := config.LoadSource(configPath())
	if err != nil {
		return fail(exitUserError, "load configuration: %s", err)
	}
	gw := gateway.New(gateway.Options{Source: source, Logger: telemetry.NewClueLogger()})

	resp, err := gw.Chat(ctx, model.Request{
		Provider:     *provider,
		SystemPrompt: generateSystemPrompt,
		Prompt:       fs.Arg(0),
	})
	if err != nil {
		return fail(exitExecFailure, "generate: %s", err)
	}

	wf, err := workflow.Decode([]byte(stripFences(resp.Text)))
	if err != nil {
		return fail(exitExecFailure, "generated document is not a workflow: %s", err)
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if err := workflow.Validate(wf); err != nil {
		return fail(exitExecFailure, "generated workflow rejected: %s", err)
	}

	encoded, err := marshalIndent(wf)
	if err != nil {
		return fail(exitExecFailure, "encode workflow: %s", err)
	}
	if err := writeResult(*outputPath, encoded); err != nil {
		return fail(exitExecFailure, "write workflow: %s", err)
	}
	return exitOK
}

// stripFences drops a markdown code fence the model may have wrapped the
// document in despite instructions.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
