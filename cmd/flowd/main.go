// Command flowd is the workflow runtime CLI. It runs workflow documents,
// generates workflows from natural-language prompts, lists the builtin tools,
// and manages the process configuration.
//
// Exit codes: 0 success, 1 user error (bad arguments, missing file,
// validation failure), 2 execution failure.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"goa.design/clue/log"

	"github.com/flowd-dev/flowd/config"
	"github.com/flowd-dev/flowd/features/model/gateway"
	"github.com/flowd-dev/flowd/runtime/dispatch"
	"github.com/flowd-dev/flowd/runtime/engine"
	"github.com/flowd-dev/flowd/runtime/events"
	"github.com/flowd-dev/flowd/runtime/telemetry"
	"github.com/flowd-dev/flowd/store"
	"github.com/flowd-dev/flowd/store/inmem"
	storemongo "github.com/flowd-dev/flowd/store/mongo"
	"github.com/flowd-dev/flowd/tools"
	"github.com/flowd-dev/flowd/tools/builtin"
)

const (
	exitOK          = 0
	exitUserError   = 1
	exitExecFailure = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUserError
	}
	switch args[0] {
	case "run":
		return cmdRun(args[1:])
	case "generate":
		return cmdGenerate(args[1:])
	case "tools":
		return cmdTools(args[1:])
	case "config":
		return cmdConfig(args[1:])
	case "init":
		return cmdInit(args[1:])
	case "-h", "--help", "help":
		usage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "flowd: unknown command %q\n\n", args[0])
		usage()
		return exitUserError
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: flowd <command> [options]

Commands:
  run <workflow-file> [--input JSON | --input-file PATH] [--output PATH] [--verbose]
                       Execute a workflow document
  generate <prompt> [--provider P] [--output PATH]
                       Generate a workflow from a natural-language prompt
  tools                List the builtin tools
  config [--set k=v | --get k | --api-key provider=key | --show]
                       Manage configuration
  init                 Create the default configuration file
`)
}

// configPath resolves the configuration document location. FLOWD_CONFIG
// overrides the default under the user's home directory.
func configPath() string {
	if p := os.Getenv("FLOWD_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "flowd.config.json"
	}
	return filepath.Join(home, ".flowd", "config.json")
}

// logContext prepares the clue logging context for the process.
func logContext(verbose bool) context.Context {
	opts := []log.LogOption{log.WithFormat(log.FormatTerminal)}
	if verbose {
		opts = append(opts, log.WithDebug())
	}
	return log.Context(context.Background(), opts...)
}

// buildStore selects the durable store from the configuration: a mongodb://
// URI selects MongoDB, anything else the in-memory store.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if strings.HasPrefix(cfg.StorageURI, "mongodb://") || strings.HasPrefix(cfg.StorageURI, "mongodb+srv://") {
		return storemongo.NewFromURI(ctx, cfg.StorageURI, "flowd")
	}
	return inmem.New(), nil
}

// buildEngine wires the full runtime: store, tool registry, model gateway,
// dispatcher, engine. The store is returned so commands can create workflows
// before executing them.
func buildEngine(ctx context.Context, source *config.Source, sink events.Sink) (*engine.Engine, store.Store, error) {
	st, err := buildStore(ctx, source.Snapshot())
	if err != nil {
		return nil, nil, err
	}
	registry := tools.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		return nil, nil, err
	}
	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewMetrics()
	gw := gateway.New(gateway.Options{Source: source, Logger: logger})
	dispatcher := dispatch.New(dispatch.Options{
		Registry: registry,
		Gateway:  gw,
		Logger:   logger,
		Metrics:  metrics,
	})
	return engine.New(engine.Options{
		Store:      st,
		Dispatcher: dispatcher,
		Source:     source,
		Sink:       sink,
		Logger:     logger,
		Metrics:    metrics,
	}), st, nil
}

func fail(code int, format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "flowd: "+format+"\n", args...)
	return code
}

// writeResult writes the JSON document to path, or stdout when path is empty.
func writeResult(path string, doc []byte) error {
	if path == "" {
		_, err := fmt.Println(string(doc))
		return err
	}
	return os.WriteFile(path, append(doc, '\n'), 0o644)
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
