package middleware

import (
	"context"
	"sync"
	"time"
)

// MetricsCollector receives per-function execution metrics.
type MetricsCollector interface {
	RecordNodeExecution(functionName string, duration time.Duration, success bool)
	RecordNodeError(functionName string, errorType string)
}

// MetricsMiddleware records execution time and success/failure counts for
// every function call the interpreter makes.
type MetricsMiddleware struct {
	collector MetricsCollector
}

// NewMetricsMiddleware creates a metrics middleware.
func NewMetricsMiddleware(collector MetricsCollector) *MetricsMiddleware {
	return &MetricsMiddleware{collector: collector}
}

// Process records metrics around the call.
func (m *MetricsMiddleware) Process(ctx context.Context, call *Invocation, next Handler) (interface{}, error) {
	start := time.Now()

	result, err := next(ctx, call)

	duration := time.Since(start)
	success := err == nil

	if m.collector != nil {
		m.collector.RecordNodeExecution(call.FunctionName, duration, success)
		if err != nil {
			m.collector.RecordNodeError(call.FunctionName, err.Error())
		}
	}

	return result, err
}

// Name returns the middleware name.
func (m *MetricsMiddleware) Name() string {
	return "Metrics"
}

// InMemoryMetricsCollector is a simple in-memory metrics collector, useful
// in tests and for script-mode runs with no Prometheus sink attached.
type InMemoryMetricsCollector struct {
	mu             sync.RWMutex
	executionCount map[string]int64
	successCount   map[string]int64
	failureCount   map[string]int64
	totalDuration  map[string]time.Duration
	errorCount     map[string]int64
}

// NewInMemoryMetricsCollector creates an in-memory metrics collector.
func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{
		executionCount: make(map[string]int64),
		successCount:   make(map[string]int64),
		failureCount:   make(map[string]int64),
		totalDuration:  make(map[string]time.Duration),
		errorCount:     make(map[string]int64),
	}
}

// RecordNodeExecution records one function call.
func (c *InMemoryMetricsCollector) RecordNodeExecution(functionName string, duration time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.executionCount[functionName]++
	c.totalDuration[functionName] += duration

	if success {
		c.successCount[functionName]++
	} else {
		c.failureCount[functionName]++
	}
}

// RecordNodeError records an error by type.
func (c *InMemoryMetricsCollector) RecordNodeError(functionName string, errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount[errorType]++
}

// GetExecutionCount returns the total call count for a function.
func (c *InMemoryMetricsCollector) GetExecutionCount(functionName string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.executionCount[functionName]
}

// GetSuccessCount returns the success count for a function.
func (c *InMemoryMetricsCollector) GetSuccessCount(functionName string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.successCount[functionName]
}

// GetFailureCount returns the failure count for a function.
func (c *InMemoryMetricsCollector) GetFailureCount(functionName string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failureCount[functionName]
}

// GetAverageDuration returns the average call duration for a function.
func (c *InMemoryMetricsCollector) GetAverageDuration(functionName string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := c.executionCount[functionName]
	if count == 0 {
		return 0
	}
	return c.totalDuration[functionName] / time.Duration(count)
}

// GetErrorCount returns the count for a specific error type.
func (c *InMemoryMetricsCollector) GetErrorCount(errorType string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorCount[errorType]
}

// Reset clears all recorded metrics.
func (c *InMemoryMetricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.executionCount = make(map[string]int64)
	c.successCount = make(map[string]int64)
	c.failureCount = make(map[string]int64)
	c.totalDuration = make(map[string]time.Duration)
	c.errorCount = make(map[string]int64)
}
