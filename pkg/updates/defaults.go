package updates

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// NoOpObserver discards every update. Useful as a default when no consumer
// has registered interest in run progress.
type NoOpObserver struct{}

// OnUpdate implements Observer.
func (o *NoOpObserver) OnUpdate(ctx context.Context, update Update) {}

// ConsoleObserver prints updates to stdout, matching the lifecycle
// narration a CLI script run should show the operator.
type ConsoleObserver struct {
	logger Logger
}

// NewConsoleObserver creates a console observer using the default logger.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{logger: NewDefaultLogger()}
}

// NewConsoleObserverWithLogger creates a console observer with a custom logger.
func NewConsoleObserverWithLogger(logger Logger) *ConsoleObserver {
	return &ConsoleObserver{logger: logger}
}

// OnUpdate implements Observer.
func (o *ConsoleObserver) OnUpdate(ctx context.Context, update Update) {
	switch update.Kind {
	case KindNarration:
		o.logger.Info(update.Message, nil)
	case KindNode:
		fields := map[string]interface{}{
			"run_id":        update.RunID,
			"flow_id":       update.FlowID,
			"node_id":       update.NodeID,
			"function_name": update.FunctionName,
			"duration":      update.Duration.String(),
		}
		o.logger.Debug(fmt.Sprintf("node %s completed", update.NodeID), fields)
	}
}

// NoOpLogger discards every log message.
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoOpLogger) Error(msg string, fields map[string]interface{}) {}

// DefaultLogger writes info and error lines via the standard library's log
// package, to stdout by default (see NewDefaultLoggerTo for another writer).
type DefaultLogger struct {
	infoLogger  *log.Logger
	errorLogger *log.Logger
}

// NewDefaultLogger creates a new default logger writing both streams to stdout.
func NewDefaultLogger() *DefaultLogger {
	return NewDefaultLoggerTo(os.Stdout)
}

// NewDefaultLoggerTo creates a default logger writing both streams to w,
// useful for tests that need to inspect log output.
func NewDefaultLoggerTo(w io.Writer) *DefaultLogger {
	return &DefaultLogger{
		infoLogger:  log.New(w, "[INFO] ", 0),
		errorLogger: log.New(w, "[ERROR] ", 0),
	}
}

func (l *DefaultLogger) Debug(msg string, fields map[string]interface{}) {
	l.infoLogger.Printf("[DEBUG] %s %v", msg, fields)
}

func (l *DefaultLogger) Info(msg string, fields map[string]interface{}) {
	l.infoLogger.Printf("%s %v", msg, fields)
}

func (l *DefaultLogger) Warn(msg string, fields map[string]interface{}) {
	l.infoLogger.Printf("[WARN] %s %v", msg, fields)
}

func (l *DefaultLogger) Error(msg string, fields map[string]interface{}) {
	l.errorLogger.Printf("%s %v", msg, fields)
}

// Manager fans a single update out to every registered observer, in
// registration order, on the calling goroutine. Delivery is synchronous and
// ordered: within one run, observers see updates in the exact order the
// interpreter produced them. A panicking observer is recovered so it cannot
// take down the run or starve observers registered after it.
type Manager struct {
	observers []Observer
}

// NewManager creates an observer manager with no observers.
func NewManager() *Manager {
	return &Manager{}
}

// NewManagerWithObservers creates a manager pre-populated with observers.
func NewManagerWithObservers(observers ...Observer) *Manager {
	return &Manager{observers: observers}
}

// Register adds an observer.
func (m *Manager) Register(observer Observer) {
	if observer != nil {
		m.observers = append(m.observers, observer)
	}
}

// Notify delivers update to every registered observer in order, on the
// calling goroutine, so that sequential updates from one run are never
// interleaved or reordered by concurrent delivery.
func (m *Manager) Notify(ctx context.Context, update Update) {
	for _, observer := range m.observers {
		m.deliver(ctx, observer, update)
	}
}

func (m *Manager) deliver(ctx context.Context, observer Observer, update Update) {
	defer func() {
		recover()
	}()
	observer.OnUpdate(ctx, update)
}

// HasObservers reports whether any observer is registered.
func (m *Manager) HasObservers() bool {
	return len(m.observers) > 0
}

// Count returns the number of registered observers.
func (m *Manager) Count() int {
	return len(m.observers)
}
