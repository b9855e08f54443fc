package middleware

import (
	"context"
	"time"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/logging"
)

// LoggingMiddleware logs the start and completion of every function call.
type LoggingMiddleware struct {
	logger *logging.Logger
}

// NewLoggingMiddleware creates a logging middleware.
func NewLoggingMiddleware(logger *logging.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Process logs the invocation.
func (m *LoggingMiddleware) Process(ctx context.Context, call *Invocation, next Handler) (interface{}, error) {
	callLogger := m.logger.
		WithRunID(call.RunID).
		WithFlowID(call.FlowID).
		WithNode(call.NodeID, call.FunctionName)

	callLogger.Debug("function call started")
	start := time.Now()

	result, err := next(ctx, call)

	duration := time.Since(start)
	if err != nil {
		callLogger.
			WithError(err).
			WithField("duration_ms", duration.Milliseconds()).
			Error("function call failed")
	} else {
		callLogger.
			WithField("duration_ms", duration.Milliseconds()).
			Debug("function call completed")
	}

	return result, err
}

// Name returns the middleware name.
func (m *LoggingMiddleware) Name() string {
	return "Logging"
}
