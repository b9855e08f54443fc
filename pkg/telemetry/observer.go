package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/updates"
)

// TelemetryObserver implements updates.Observer and records OpenTelemetry
// spans plus Prometheus metrics for a run, driven entirely by the update
// stream pkg/interpreter produces: a "Starting process." narration opens the
// run span, each KindNode update opens and immediately closes a child node
// span (the interpreter only notifies after a node finishes), and the
// "Process completed."/"ERROR: ..." narrations close the run span and record
// the run's aggregate metrics.
type TelemetryObserver struct {
	provider *Provider

	mu            sync.Mutex
	runSpan       trace.Span
	runSpanCtx    context.Context
	runStartTime  time.Time
	flowID        string
	nodesExecuted int
}

// NewTelemetryObserver creates an observer recording into provider.
func NewTelemetryObserver(provider *Provider) *TelemetryObserver {
	return &TelemetryObserver{provider: provider}
}

// OnUpdate implements updates.Observer.
func (o *TelemetryObserver) OnUpdate(ctx context.Context, update updates.Update) {
	switch update.Kind {
	case updates.KindNode:
		o.onNode(ctx, update)
	case updates.KindNarration:
		o.onNarration(ctx, update)
	}
}

func (o *TelemetryObserver) onNarration(ctx context.Context, update updates.Update) {
	switch {
	case update.Message == "Starting process.":
		o.mu.Lock()
		spanCtx, span := o.provider.Tracer().Start(ctx, "flow.run")
		o.runSpan = span
		o.runSpanCtx = spanCtx
		o.runStartTime = time.Now()
		o.nodesExecuted = 0
		o.mu.Unlock()
	case update.Message == "Process completed.":
		o.endRun(ctx, "")
	case strings.HasPrefix(update.Message, "ERROR: "):
		o.endRun(ctx, strings.TrimPrefix(update.Message, "ERROR: "))
	}
}

func (o *TelemetryObserver) endRun(ctx context.Context, errMsg string) {
	o.mu.Lock()
	span := o.runSpan
	start := o.runStartTime
	flowID := o.flowID
	nodesExecuted := o.nodesExecuted
	o.runSpan = nil
	o.mu.Unlock()

	duration := time.Since(start)
	success := errMsg == ""
	o.provider.RecordRunExecution(ctx, flowID, duration, success, nodesExecuted)

	if span == nil {
		return
	}
	if !success {
		span.SetStatus(codes.Error, errMsg)
	} else {
		span.SetStatus(codes.Ok, "run completed successfully")
	}
	span.End()
}

func (o *TelemetryObserver) onNode(ctx context.Context, update updates.Update) {
	o.mu.Lock()
	spanCtx := o.runSpanCtx
	if spanCtx == nil {
		spanCtx = ctx
	}
	o.flowID = update.FlowID
	o.nodesExecuted++
	o.mu.Unlock()

	_, span := o.provider.Tracer().Start(spanCtx, "node.evaluate",
		trace.WithAttributes(
			attribute.String("node.id", update.NodeID),
			attribute.String("node.function", update.FunctionName),
			attribute.String("run.id", update.RunID),
		),
	)
	span.SetStatus(codes.Ok, "node completed successfully")
	span.End()

	o.provider.RecordNodeExecution(ctx, update.NodeID, update.FunctionName, update.Duration, true)
}
