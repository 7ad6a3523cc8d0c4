// Package telemetry provides the logging and metrics facade the runtime
// components use. Production wiring delegates to goa.design/clue/log and OTEL
// metrics; tests use the no-op implementations so they run without configuring
// either.
package telemetry

import (
	"context"
)

type (
	// Logger captures the logging operations the runtime needs. Key-value
	// pairs alternate keys and values, clue-style.
	Logger interface {
		// Debug emits a debug-level message with structured key-value pairs.
		Debug(ctx context.Context, msg string, keyvals ...any)
		// Info emits an info-level message with structured key-value pairs.
		Info(ctx context.Context, msg string, keyvals ...any)
		// Warn emits a warn-level message with structured key-value pairs.
		Warn(ctx context.Context, msg string, keyvals ...any)
		// Error emits an error-level message attached to err.
		Error(ctx context.Context, err error, msg string, keyvals ...any)
	}

	nopLogger struct{}
)

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...any)        {}
func (nopLogger) Info(context.Context, string, ...any)         {}
func (nopLogger) Warn(context.Context, string, ...any)         {}
func (nopLogger) Error(context.Context, error, string, ...any) {}
