package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/flowd-dev/flowd/config"
	"github.com/flowd-dev/flowd/runtime/events"
	"github.com/flowd-dev/flowd/runtime/execution"
	"github.com/flowd-dev/flowd/runtime/workflow"
)

// cmdRun executes a workflow document and prints the execution output.
func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	inputJSON := fs.String("input", "", "execution input as inline JSON")
	inputFile := fs.String("input-file", "", "path to a JSON file with the execution input")
	outputPath := fs.String("output", "", "write the execution output to this path instead of stdout")
	verbose := fs.Bool("verbose", false, "stream execution events to stderr")
	if err := fs.Parse(args); err != nil {
		return exitUserError
	}
	if fs.NArg() != 1 {
		return fail(exitUserError, "run: exactly one workflow file is required")
	}
	if *inputJSON != "" && *inputFile != "" {
		return fail(exitUserError, "run: --input and --input-file are mutually exclusive")
	}

	doc, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fail(exitUserError, "read workflow: %s", err)
	}
	wf, err := workflow.Decode(doc)
	if err != nil {
		return fail(exitUserError, "decode workflow: %s", err)
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}

	input, err := resolveInput(*inputJSON, *inputFile)
	if err != nil {
		return fail(exitUserError, "%s", err)
	}

	ctx := logContext(*verbose)
	source, err := config.LoadSource(configPath())
	if err != nil {
		return fail(exitUserError, "load configuration: %s", err)
	}

	var sink events.Sink
	if *verbose {
		sink = events.SinkFunc(printEvent)
	}
	eng, st, err := buildEngine(ctx, source, sink)
	if err != nil {
		return fail(exitExecFailure, "initialize runtime: %s", err)
	}

	if err := st.CreateWorkflow(ctx, wf); err != nil {
		return fail(exitExecFailure, "persist workflow: %s", err)
	}
	exec, err := eng.ExecuteWorkflow(ctx, wf.ID, input)
	if err != nil {
		return fail(exitUserError, "%s", err)
	}

	final, err := eng.Wait(ctx, exec.ID)
	if err != nil {
		return fail(exitExecFailure, "wait for execution: %s", err)
	}
	switch final.Status {
	case execution.StatusCompleted:
		encoded, err := marshalIndent(final.Output)
		if err != nil {
			return fail(exitExecFailure, "encode output: %s", err)
		}
		if err := writeResult(*outputPath, encoded); err != nil {
			return fail(exitExecFailure, "write output: %s", err)
		}
		return exitOK
	case execution.StatusStopped:
		fmt.Fprintln(os.Stderr, "flowd: execution stopped")
		return exitExecFailure
	default:
		return fail(exitExecFailure, "execution failed: %s", final.Error)
	}
}

func resolveInput(inline, path string) (any, error) {
	var doc []byte
	switch {
	case inline != "":
		doc = []byte(inline)
	case path != "":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		doc = content
	default:
		return nil, nil
	}
	var input any
	if err := json.Unmarshal(doc, &input); err != nil {
		return nil, fmt.Errorf("parse input JSON: %w", err)
	}
	return input, nil
}

// printEvent streams one event to stderr for --verbose runs.
func printEvent(_ context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev.Payload())
	if err != nil {
		payload = []byte("{}")
	}
	fmt.Fprintf(os.Stderr, "%-18s %s\n", ev.Type(), payload)
	return nil
}
