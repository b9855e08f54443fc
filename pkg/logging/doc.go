// Package logging provides structured logging for the flow interpreter.
//
// # Overview
//
// The logging package wraps log/slog with contextual helpers for the
// interpreter's execution lifecycle: flow id, run id, node id, and function
// name.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Output: os.Stdout,
//	})
//
//	logger.Info("run started")
//	logger.WithFlowID(flow.ID).WithRunID(runID).Info("evaluating node")
//
// # Context Integration
//
//	ctx = logger.WithContext(ctx)
//	// ... later, in a different function ...
//	logging.FromContext(ctx).Warn("retrying function call")
//
// # Output Formats
//
// JSON (default):
//
//	{"time":"2026-07-31T10:30:00Z","level":"INFO","msg":"run started","flow_id":"f1","run_id":"r1"}
//
// Text (Config.Pretty = true), useful for local script-mode runs.
//
// # Thread Safety
//
// Logger values are immutable; With* methods return a new Logger sharing the
// underlying slog handler. Safe for concurrent use from multiple goroutines.
package logging
