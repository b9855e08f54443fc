// Package interpreter implements the flow execution machine: spec §4.D's
// evaluate state machine, argument/kwarg resolution, exception-edge-as-
// kwarg wiring, memoisation, and the control-flow primitives of §4.E
// (bound here as methods, per §4.B's "bind to the interpreter's method").
//
// This is a direct, idiomatic-Go re-expression of the source's
// app/utils/processor.py Process class: the same recursive
// _run_function/evaluate shape, the same _get_args/_get_kwargs resolution
// order, the same custom_functions dispatch — but with Go's context.Context
// standing in for the source's asyncio cancellation and coroutine/sync
// distinction.
package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/env"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/flow"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/flowerrors"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/logging"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/middleware"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/registry"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/updates"
)

// Limits bounds a run so a malformed or adversarial flow cannot loop or
// recurse forever; all are optional (0 = unlimited, matching pkg/config's
// "0 = unlimited" convention).
type Limits struct {
	MaxNodeExecutions    int
	MaxIterations        int
	MaxNodeExecutionTime time.Duration
}

// Interpreter runs a single Flow for the duration of one Run call. It is
// not safe to reuse across runs of different flows, and not safe to share
// an env.Environment with another interpreter running concurrently.
type Interpreter struct {
	idx      *flow.Index
	env      *env.Environment
	registry *registry.Registry
	updates  *updates.Manager
	logger   *logging.Logger
	limits   Limits

	runID  string
	flowID string

	cancelled     atomic.Bool
	nodeExecCount atomic.Int64
	printer       *message.Printer
	middlewares   *middleware.Chain
	metrics       *middleware.InMemoryMetricsCollector
}

// New builds an Interpreter for a single run of idx, backed by environment
// e, resolving host functions through reg, and streaming progress to mgr
// (may be nil, in which case updates are dropped). Every registry function
// call (control-flow primitives are exempt) is wrapped in a middleware
// chain of logging, in-memory metrics, and a per-call timeout derived from
// limits.MaxNodeExecutionTime, the same Chain-of-Responsibility pkg/middleware
// was written to wrap.
func New(idx *flow.Index, e *env.Environment, reg *registry.Registry, mgr *updates.Manager, logger *logging.Logger, runID string, limits Limits) *Interpreter {
	if mgr == nil {
		mgr = updates.NewManager()
	}
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	metrics := middleware.NewInMemoryMetricsCollector()
	chain := middleware.NewChain().
		Use(middleware.NewLoggingMiddleware(logger)).
		Use(middleware.NewMetricsMiddleware(metrics))
	if limits.MaxNodeExecutionTime > 0 {
		chain = chain.Use(middleware.NewTimeoutMiddleware(limits.MaxNodeExecutionTime))
	}
	return &Interpreter{
		idx:         idx,
		env:         e,
		registry:    reg,
		updates:     mgr,
		logger:      logger,
		limits:      limits,
		runID:       runID,
		flowID:      idx.Flow().ID,
		printer:     message.NewPrinter(language.English),
		middlewares: chain,
		metrics:     metrics,
	}
}

// Cancel sets the cooperative cancel flag. The next pre-emption point in
// any in-flight evaluate call will return early, per spec §4.F.
func (in *Interpreter) Cancel() {
	in.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (in *Interpreter) Cancelled() bool {
	return in.cancelled.Load()
}

// Metrics returns the in-memory per-function execution metrics collected by
// this run's middleware chain (call counts, durations, error counts by
// function name), for callers that want run-local numbers without querying
// the process-wide Prometheus registry.
func (in *Interpreter) Metrics() *middleware.InMemoryMetricsCollector {
	return in.metrics
}

// Run evaluates the flow's start node to completion (or cancellation) and
// returns the final environment contents. Per spec §4.D, any failure is
// wrapped as a ProcessRunError carrying a dump of the flow and variables.
func (in *Interpreter) Run(ctx context.Context) (map[string]interface{}, error) {
	runLogger := in.logger.WithRunID(in.runID).WithFlowID(in.flowID)
	runLogger.Info("run started")
	start := time.Now()

	in.updates.Notify(ctx, updates.Narration("Starting process."))

	err := in.evaluate(ctx, in.idx.Flow().StartID)
	if err != nil {
		in.updates.Notify(ctx, updates.Narration(fmt.Sprintf("ERROR: %v", err)))
		dump := flowerrors.Dump{
			Flow:      in.idx.Flow(),
			Variables: in.env.All(),
		}
		processErr := flowerrors.NewProcessError(err, dump)
		runLogger.
			WithError(processErr).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("nodes_executed", in.nodeExecCount.Load()).
			Error("run failed")
		return in.env.All(), processErr
	}

	in.updates.Notify(ctx, updates.Narration("Process completed."))
	runLogger.
		WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("nodes_executed", in.nodeExecCount.Load()).
		Info("run completed")
	return in.env.All(), nil
}

// evaluate is spec §4.D's per-node state machine: Pending -> Resolving ->
// Running -> Done|Failed. Memoisation (env.Has) ensures a node reaches Done
// at most once per run via the lazy-demand path; chain-driven re-entry is
// rejected ahead of time by flow.Build (see SPEC_FULL.md's Open Question
// decision), so this recursion is guaranteed to terminate.
func (in *Interpreter) evaluate(ctx context.Context, id string) error {
	// Pre-emption point: yield so the update channel can drain, and so a
	// cancellation requested from another goroutine is observed.
	runtime.Gosched()
	if in.cancelled.Load() || ctx.Err() != nil {
		return nil
	}

	if in.limits.MaxNodeExecutions > 0 && in.nodeExecCount.Load() >= int64(in.limits.MaxNodeExecutions) {
		return flowerrors.New(flowerrors.KindFunctionRunError, nil, "node execution limit (%d) exceeded", in.limits.MaxNodeExecutions)
	}

	node, err := in.idx.GetNode(id)
	if err != nil {
		return err
	}

	in.logger.
		WithRunID(in.runID).
		WithFlowID(in.flowID).
		WithNode(node.ID, node.Function).
		Debug("evaluating node")

	if in.registry != nil && !in.registry.IsAllowed(node.Function) {
		return flowerrors.New(flowerrors.KindInvalidFunction, nil, "function %q is not in the allow list", node.Function)
	}

	if err := in.setExceptions(node); err != nil {
		return err
	}

	args, err := in.resolveArgs(ctx, node)
	if err != nil {
		return err
	}
	kwargs, err := in.resolveKwargs(ctx, node)
	if err != nil {
		return err
	}

	in.nodeExecCount.Add(1)
	result, duration, err := in.call(ctx, node, args, kwargs)
	if err != nil {
		return err
	}

	result, err = normalizeResult(result)
	if err != nil {
		return err
	}

	in.env.Set(node.ID, result)

	in.updates.Notify(ctx, updates.NodeUpdate(in.runID, in.flowID, node.ID, node.Function, duration, result))

	if node.NextFunction != "" {
		return in.evaluate(ctx, node.NextFunction)
	}
	return nil
}

// setExceptions materialises every exception edge from id as a keyword
// argument on the node, per spec §4.D step 4 / §4.E / §7's "recovery via
// exception edges": the wiring is exposed as a plain kwarg the invoked
// function (typically a control-flow primitive) reads to decide where to
// route on failure. It is not a runtime try/catch.
func (in *Interpreter) setExceptions(node *flow.Node) error {
	edges := in.idx.ExceptionEdgesFrom(node.ID)
	if len(edges) == 0 {
		return nil
	}
	if node.Kwargs == nil {
		node.Kwargs = make(map[string]interface{})
	}
	for _, e := range edges {
		key := e.SourceHandleString()
		if key == "" {
			return flowerrors.New(flowerrors.KindSetExceptionsError, nil, "exception edge %q from %q has no sourceHandle", e.ID, node.ID)
		}
		node.Kwargs[key] = e.Target
	}
	return nil
}

// resolveArgs implements spec §4.D's positional argument resolution: start
// from the literal args list, then for each arg edge (in index order),
// either read the value already computed for edge.SourceHandle out of the
// environment, or recursively evaluate the edge's source node on demand.
func (in *Interpreter) resolveArgs(ctx context.Context, node *flow.Node) ([]interface{}, error) {
	args := append([]interface{}(nil), node.Args...)

	for _, e := range in.idx.ArgEdgesTo(node.ID) {
		value, err := in.resolveEdgeValue(ctx, e.Edge)
		if err != nil {
			return nil, flowerrors.New(flowerrors.KindArgumentError, err, "resolving arg %d for node %q", e.Index, node.ID)
		}
		if e.Index < 0 {
			return nil, flowerrors.New(flowerrors.KindArgumentError, nil, "negative positional index %d for node %q", e.Index, node.ID)
		}
		if e.Index >= len(args) {
			return nil, flowerrors.New(flowerrors.KindArgumentError, nil, "positional index %d out of range (have %d literal args) for node %q", e.Index, len(args), node.ID)
		}
		args[e.Index] = value
	}
	return args, nil
}

// resolveKwargs is symmetric to resolveArgs, keyed by string per spec §4.D.
func (in *Interpreter) resolveKwargs(ctx context.Context, node *flow.Node) (map[string]interface{}, error) {
	kwargs := make(map[string]interface{}, len(node.Kwargs))
	for k, v := range node.Kwargs {
		kwargs[k] = v
	}
	for _, e := range in.idx.KwargEdgesTo(node.ID) {
		value, err := in.resolveEdgeValue(ctx, e)
		if err != nil {
			return nil, flowerrors.New(flowerrors.KindKeywordArgumentError, err, "resolving kwarg %v for node %q", e.TargetHandle, node.ID)
		}
		key := fmt.Sprintf("%v", e.TargetHandle)
		kwargs[key] = value
	}
	return kwargs, nil
}

// resolveEdgeValue implements the shared rule behind both resolveArgs and
// resolveKwargs: prefer an already-computed environment entry named by the
// edge's sourceHandle (unless it is the "__ignore__" sentinel), otherwise
// lazily evaluate the edge's source node and take its result.
func (in *Interpreter) resolveEdgeValue(ctx context.Context, e flow.Edge) (interface{}, error) {
	sh := e.SourceHandleString()
	if sh != "" && sh != flow.IgnoreSourceHandle {
		if v, ok := in.env.Get(sh); ok {
			return v, nil
		}
	}
	if !in.env.Has(e.Source) {
		if err := in.evaluate(ctx, e.Source); err != nil {
			return nil, err
		}
	}
	v, _ := in.env.Get(e.Source)
	return v, nil
}

// call invokes the resolved function (control-flow primitive or registry
// host function) and measures its wall-clock duration.
func (in *Interpreter) call(ctx context.Context, node *flow.Node, args []interface{}, kwargs map[string]interface{}) (interface{}, time.Duration, error) {
	start := time.Now()

	// Per spec §3, a null function marks a pure literal holder: it is never
	// invoked, its "result" is simply its first literal/resolved argument
	// (or nil if it carries none), letting such a node exist purely to be
	// referenced by downstream arg/kwarg edges.
	if node.Function == "" {
		if len(args) == 0 {
			return nil, time.Since(start), nil
		}
		return args[0], time.Since(start), nil
	}

	if registry.ControlFlowNames[node.Function] {
		fn := in.controlFlowFunc(node.Function)
		allArgs := append([]interface{}{node.ID}, args...)
		result, err := fn(ctx, allArgs, kwargs)
		if err != nil {
			return nil, time.Since(start), err
		}
		return result, time.Since(start), nil
	}

	if in.registry == nil {
		return nil, time.Since(start), flowerrors.New(flowerrors.KindModuleNotFound, nil, "no registry configured, cannot resolve %q", node.Function)
	}
	fn, err := in.registry.Resolve(node.Function)
	if err != nil {
		return nil, time.Since(start), err
	}

	call := &middleware.Invocation{
		RunID:        in.runID,
		FlowID:       in.flowID,
		NodeID:       node.ID,
		FunctionName: node.Function,
		Args:         args,
		Kwargs:       kwargs,
	}
	result, err := in.middlewares.Execute(ctx, call, func(ctx context.Context, call *middleware.Invocation) (interface{}, error) {
		return fn(ctx, call.NodeID, call.Args, call.Kwargs)
	})
	if err != nil {
		return nil, time.Since(start), flowerrors.New(flowerrors.KindFunctionCallError, err, "calling %q", node.Function)
	}
	return result, time.Since(start), nil
}

// normalizeResult applies spec §4.D step 8: if the result exposes an HTTP
// response shape, check its status and coerce the body to JSON (falling
// back to text), the Go equivalent of the source's
// `if isinstance(response, Response): response.raise_for_status(); response
// = response.json() or response.text`.
func normalizeResult(result interface{}) (interface{}, error) {
	resp, ok := result.(*http.Response)
	if !ok {
		return result, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, flowerrors.New(flowerrors.KindFunctionCallError, err, "reading http response body")
	}
	if resp.StatusCode >= 400 {
		return nil, flowerrors.New(flowerrors.KindFunctionCallError, nil, "http status %d: %s", resp.StatusCode, string(body))
	}

	var asJSON interface{}
	if err := json.Unmarshal(body, &asJSON); err == nil {
		return asJSON, nil
	}
	return string(body), nil
}

// FormatDuration renders d per spec §4.D step 10: sub-millisecond durations
// in microseconds, sub-second in milliseconds, else seconds, each with two
// decimal places rendered through a locale-stable printer.
func (in *Interpreter) FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 0.001:
		return in.printer.Sprintf("%.2fμs", seconds*1_000_000)
	case seconds < 1:
		return in.printer.Sprintf("%.2fms", seconds*1_000)
	default:
		return in.printer.Sprintf("%.2fs", seconds)
	}
}

// controlFlowFunc is defined in controlflow.go; kept as a method value
// lookup here so call() stays free of a type switch over primitive names.
func (in *Interpreter) controlFlowFunc(name string) func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	switch name {
	case "branch":
		return in.branch
	case "sequence":
		return in.sequence
	case "parallel":
		return in.parallel
	case "for_each":
		return in.forEach
	case "set_variable":
		return in.setVariable
	case "extract_json":
		return in.extractJSON
	default:
		return func(context.Context, []interface{}, map[string]interface{}) (interface{}, error) {
			return nil, flowerrors.New(flowerrors.KindInvalidFunction, nil, "unknown control-flow primitive %q", name)
		}
	}
}
