package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/flowd-dev/flowd/tools"
	"github.com/flowd-dev/flowd/tools/builtin"
)

// cmdTools lists the builtin tool catalog.
func cmdTools(args []string) int {
	if len(args) != 0 {
		return fail(exitUserError, "tools: no arguments expected")
	}
	registry := tools.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		return fail(exitExecFailure, "register tools: %s", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tDESCRIPTION")
	for _, h := range registry.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", h.ID, h.Category, h.Description)
	}
	w.Flush()
	return exitOK
}
