// Package updates implements the interpreter's update channel: the stream of
// per-node completion records and lifecycle narration strings a driver
// forwards to a caller (an HTTP response, a websocket, a CLI writer) while a
// flow runs.
package updates

import (
	"context"
	"time"
)

// Kind distinguishes a structured node-completion update from a narration
// string describing the run's lifecycle.
type Kind string

const (
	// KindNode reports that a single node finished evaluating.
	KindNode Kind = "node"
	// KindNarration carries a human-readable lifecycle message such as
	// "Starting process." or "Process completed."
	KindNarration Kind = "narration"
)

// Update is the single message type delivered to observers. Only the fields
// relevant to Kind are populated.
type Update struct {
	Kind Kind       `json:"kind"`
	Time time.Time  `json:"time"`

	// Populated when Kind == KindNode.
	RunID        string        `json:"run_id,omitempty"`
	FlowID       string        `json:"flow_id,omitempty"`
	NodeID       string        `json:"node_id,omitempty"`
	FunctionName string        `json:"function_name,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Response     interface{}   `json:"response,omitempty"`

	// Populated when Kind == KindNarration.
	Message string `json:"message,omitempty"`
}

// Observer receives updates as they occur during a run.
type Observer interface {
	OnUpdate(ctx context.Context, update Update)
}

// Logger defines the interface for custom logging sinks consumers may wire
// into an Observer implementation, decoupled from the package's own
// structured logger.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NodeUpdate constructs a KindNode update.
func NodeUpdate(runID, flowID, nodeID, functionName string, duration time.Duration, response interface{}) Update {
	return Update{
		Kind:         KindNode,
		Time:         time.Now(),
		RunID:        runID,
		FlowID:       flowID,
		NodeID:       nodeID,
		FunctionName: functionName,
		Duration:     duration,
		Response:     response,
	}
}

// Narration constructs a KindNarration update.
func Narration(message string) Update {
	return Update{
		Kind:    KindNarration,
		Time:    time.Now(),
		Message: message,
	}
}
