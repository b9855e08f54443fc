// Package driver implements the driver shell of spec §4.H: it accepts a
// parsed flow, builds an interpreter and environment for it, and either
// runs it to completion (script mode) or runs it concurrently with a
// control loop that accepts stop/replace requests (server mode), exactly
// mirroring the source's run_from_file and app/main.py's websocket loop.
package driver

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/env"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/flow"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/interpreter"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/logging"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/registry"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/updates"
)

// Lifecycle narration strings, reproduced verbatim from the source's
// app/main.py websocket handler (spec §6 requires exact matches so a
// thin-client observer can pattern-match on them).
const (
	NarrationStarting       = "Starting process."
	NarrationStopping       = "Stopping process per user request."
	NarrationNoProcess      = "No process running."
	NarrationCompleted      = "Process completed."
	NarrationAlreadyRunning = "Process already running. Ignoring new process request."
	narrationInvalidPrefix  = "Invalid flow data: "
)

// Builder constructs the pieces a Driver needs per run: a fresh
// registry (so per-run allow-lists don't leak across runs) and the logger
// to attribute this run's log lines to.
type Builder struct {
	NewRegistry func() *registry.Registry
	Logger      *logging.Logger
	Limits      interpreter.Limits
}

// Driver runs flows one at a time per Session, relaying updates to an
// injected observer and accepting cooperative cancellation, per spec §4.H.
type Driver struct {
	builder Builder
}

// New creates a Driver using builder to construct per-run dependencies. A
// nil builder.NewRegistry defaults to registry.NewDefault(nil): the
// operator/expr/http built-in modules with no named HTTP clients.
func New(builder Builder) *Driver {
	if builder.Logger == nil {
		builder.Logger = logging.New(logging.DefaultConfig())
	}
	if builder.NewRegistry == nil {
		builder.NewRegistry = func() *registry.Registry { return registry.NewDefault(nil) }
	}
	return &Driver{builder: builder}
}

// RunScript runs payload to completion and returns the final environment,
// the Go equivalent of the source's run_from_file: Process(flow).run().
func (d *Driver) RunScript(ctx context.Context, payload []byte, observer updates.Observer) (map[string]interface{}, error) {
	f, err := flow.Parse(payload)
	if err != nil {
		return nil, err
	}
	idx, err := flow.Build(f)
	if err != nil {
		return nil, err
	}

	mgr := updates.NewManager()
	if observer != nil {
		mgr.Register(observer)
	}

	runID := uuid.NewString()
	e := env.New()
	for k, v := range f.Variables {
		e.Set(k, v)
	}

	reg := d.builder.NewRegistry()
	logger := d.builder.Logger.WithRunID(runID).WithFlowID(f.ID)

	in := interpreter.New(idx, e, reg, mgr, logger, runID, d.builder.Limits)
	return in.Run(ctx)
}

// Session runs flows one at a time, accepting a JSON control message per
// spec §6's websocket surface: a fresh flow payload starts a run (rejected
// with NarrationAlreadyRunning if one is in flight), and a payload
// containing the key "stop" cancels the active run.
type Session struct {
	driver   *Driver
	observer updates.Observer

	mu      sync.Mutex
	cancel  context.CancelFunc
	active  *interpreter.Interpreter
	running bool
}

// NewSession creates a Session bound to a single observer (e.g. a
// websocket connection's send function), matching one app/main.py
// websocket_run invocation.
func NewSession(d *Driver, observer updates.Observer) *Session {
	return &Session{driver: d, observer: observer}
}

// Handle processes one inbound control message. If no run is active, msg
// is interpreted as a flow payload to start; if a run is active and msg
// contains {"stop": ...}, the active run is cancelled; any other message
// while a run is active is rejected. It reports true when the caller
// should close the connection: per spec §6, an irrecoverable parse
// failure is fatal to the connection, not just the one message.
func (s *Session) Handle(ctx context.Context, msg []byte) (closeConnection bool) {
	s.mu.Lock()
	if s.running {
		if isStopMessage(msg) {
			s.cancel()
			s.mu.Unlock()
			s.notify(ctx, NarrationStopping)
			return false
		}
		s.mu.Unlock()
		s.notify(ctx, NarrationAlreadyRunning)
		return false
	}
	s.mu.Unlock()

	if isStopMessage(msg) {
		s.notify(ctx, NarrationNoProcess)
		return false
	}

	f, err := flow.Parse(msg)
	if err != nil {
		s.notify(ctx, narrationInvalidPrefix+err.Error())
		return true
	}
	idx, err := flow.Build(f)
	if err != nil {
		s.notify(ctx, narrationInvalidPrefix+err.Error())
		return true
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	mgr := updates.NewManager()
	mgr.Register(s.observer)
	runID := uuid.NewString()
	e := env.New()
	for k, v := range f.Variables {
		e.Set(k, v)
	}
	reg := s.driver.builder.NewRegistry()
	logger := s.driver.builder.Logger.WithRunID(runID).WithFlowID(f.ID)
	in := interpreter.New(idx, e, reg, mgr, logger, runID, s.driver.builder.Limits)

	s.mu.Lock()
	s.active = in
	s.mu.Unlock()

	// Starting/completion narration is emitted by in.Run itself (mgr is
	// registered to s.observer above), so Handle only adds the
	// session-level rejections/stop narration, never duplicating those
	// two strings.
	go func() {
		defer cancel()
		_, _ = in.Run(runCtx)

		s.mu.Lock()
		s.running = false
		s.active = nil
		s.mu.Unlock()
	}()
	return false
}

// Active reports whether a run is currently in flight.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) notify(ctx context.Context, message string) {
	if s.observer == nil {
		return
	}
	s.observer.OnUpdate(ctx, updates.Narration(message))
}

func isStopMessage(msg []byte) bool {
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		return false
	}
	_, ok := m["stop"]
	return ok
}
