package middleware

import (
	"context"
	"fmt"
	"time"
)

// TimeoutMiddleware bounds how long a single function invocation may run.
// This is distinct from the interpreter's own cooperative cancellation
// point: a function that never yields (a blocking host call) is still
// bounded by this middleware, since it races the call against a timer
// instead of relying on the callee to check a flag.
type TimeoutMiddleware struct {
	timeout time.Duration
}

// NewTimeoutMiddleware creates a timeout middleware. A non-positive timeout
// disables enforcement.
func NewTimeoutMiddleware(timeout time.Duration) *TimeoutMiddleware {
	return &TimeoutMiddleware{timeout: timeout}
}

// Process enforces the timeout, respecting context cancellation as well.
func (m *TimeoutMiddleware) Process(ctx context.Context, call *Invocation, next Handler) (interface{}, error) {
	if m.timeout <= 0 {
		return next(ctx, call)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	type result struct {
		value interface{}
		err   error
	}
	resultChan := make(chan result, 1)

	go func() {
		value, err := next(timeoutCtx, call)
		resultChan <- result{value: value, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.value, res.err
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("function %s timed out after %v", call.FunctionName, m.timeout)
	}
}

// Name returns the middleware name.
func (m *TimeoutMiddleware) Name() string {
	return "Timeout"
}
