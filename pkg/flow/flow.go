// Package flow parses and validates a Flow payload: the immutable graph of
// nodes and handle-classified edges the interpreter executes. It mirrors
// the source's app/models package (a Pydantic Flow/Node/Edge) but trades
// runtime validators for an explicit, pre-built Index so the interpreter
// never reclassifies an edge twice.
package flow

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/flowerrors"
)

// HandleStart, HandleExecOut and HandleExecIn are the reserved handle
// values spec §3's edge-classification table keys off.
const (
	HandleStart  = "start"
	HandleExecOut = "e-out"
	HandleExecIn  = "e-in"
	// IgnoreSourceHandle marks an edge whose source value must never be
	// read from the environment even if present, forcing re-resolution
	// from the edge's source node instead.
	IgnoreSourceHandle = "__ignore__"
)

// Node is one function invocation site in a flow. NextFunction is mutated
// at run time by branch() and by Index.GetNode's exec-edge lookup; that
// mutation is confined to a single Index instance (one per Run).
type Node struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type,omitempty"`
	Function     string                 `json:"function,omitempty"`
	Args         []interface{}          `json:"args,omitempty"`
	Kwargs       map[string]interface{} `json:"kwargs,omitempty"`
	NextFunction string                 `json:"next_function,omitempty"`
}

// rawNode accepts the two on-the-wire shapes args/kwargs can arrive in
// (plain list/map, or the "[{k:v},...]" flattened forms from spec §6) plus
// a node embedding its data flat (as the source's Node.data fields do) or
// nested under "data".
type rawNode struct {
	ID           string          `json:"id"`
	Type         string          `json:"type,omitempty"`
	Function     *string         `json:"function,omitempty"`
	Args         json.RawMessage `json:"args,omitempty"`
	Kwargs       json.RawMessage `json:"kwargs,omitempty"`
	NextFunction *string         `json:"next_function,omitempty"`
	Data         *rawNodeData    `json:"data,omitempty"`
}

type rawNodeData struct {
	Function     *string         `json:"function,omitempty"`
	Args         json.RawMessage `json:"args,omitempty"`
	Kwargs       json.RawMessage `json:"kwargs,omitempty"`
	NextFunction *string         `json:"next_function,omitempty"`
}

// UnmarshalJSON normalises a node payload: fields nested under "data" are
// flattened up, and args/kwargs submitted as a "[{k:v}, ...]" sequence are
// flattened per spec §6 ("args supplied as [{k:v}, ...] is flattened to
// [v, ...] by taking the first value of each mapping").
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw rawNode
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	n.ID = raw.ID
	n.Type = raw.Type

	function := raw.Function
	args := raw.Args
	kwargs := raw.Kwargs
	next := raw.NextFunction
	if raw.Data != nil {
		if function == nil {
			function = raw.Data.Function
		}
		if args == nil {
			args = raw.Data.Args
		}
		if kwargs == nil {
			kwargs = raw.Data.Kwargs
		}
		if next == nil {
			next = raw.Data.NextFunction
		}
	}
	if function != nil {
		n.Function = *function
	}
	if next != nil {
		n.NextFunction = *next
	}

	flatArgs, err := flattenArgs(args)
	if err != nil {
		return fmt.Errorf("node %s: args: %w", n.ID, err)
	}
	n.Args = flatArgs

	flatKwargs, err := flattenKwargs(kwargs)
	if err != nil {
		return fmt.Errorf("node %s: kwargs: %w", n.ID, err)
	}
	n.Kwargs = flatKwargs

	return nil
}

func flattenArgs(raw json.RawMessage) ([]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []interface{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	flattened := make([]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			flattened = append(flattened, firstValue(m))
			continue
		}
		flattened = append(flattened, item)
	}
	return flattened, nil
}

func flattenKwargs(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	// Try the plain-map shape first.
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}
	// Fall back to "[{k:v}, ...]".
	var list []map[string]interface{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	merged := make(map[string]interface{}, len(list))
	for _, m := range list {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged, nil
}

func firstValue(m map[string]interface{}) interface{} {
	for _, v := range m {
		return v
	}
	return nil
}

// Edge is a typed relationship between two nodes, classified into exactly
// one Role by (SourceHandle, TargetHandle) per spec §3's table.
type Edge struct {
	ID           string      `json:"id,omitempty"`
	Source       string      `json:"source"`
	SourceHandle interface{} `json:"sourceHandle,omitempty"`
	Target       string      `json:"target"`
	TargetHandle interface{} `json:"targetHandle,omitempty"`
}

// SourceHandleString returns the edge's source handle as a string, or ""
// if absent.
func (e Edge) SourceHandleString() string {
	return stringify(e.SourceHandle)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// targetHandleIndex reports whether the edge's target handle is a valid
// positional index (a number, or a string strconv.Atoi accepts, sign
// included), and its value.
func (e Edge) targetHandleIndex() (int, bool) {
	switch t := e.TargetHandle.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Role classifies an edge per spec §3's table.
type Role int

const (
	RoleStart Role = iota
	RoleExec
	RoleException
	RoleArg
	RoleKwarg
)

func (e Edge) role() Role {
	sh := e.SourceHandleString()
	th := stringify(e.TargetHandle)

	if sh == HandleStart {
		return RoleStart
	}
	if th == HandleExecIn {
		if sh == HandleExecOut {
			return RoleExec
		}
		return RoleException
	}
	if _, ok := e.targetHandleIndex(); ok {
		return RoleArg
	}
	return RoleKwarg
}

// Flow is the immutable parsed graph described by spec §3.
type Flow struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	Nodes     []Node                 `json:"nodes"`
	Edges     []Edge                 `json:"edges"`
	StartID   string                 `json:"start_id,omitempty"`
}

// Parse decodes a flow payload and determines its start node, per spec
// §4.A: explicit start_id wins, otherwise the unique "start"-handled edge's
// target is used; absence of both is fatal.
func Parse(payload []byte) (*Flow, error) {
	var f Flow
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, flowerrors.New(flowerrors.KindFlowMalformed, err, "invalid flow payload")
	}

	if f.StartID == "" {
		starts := 0
		for _, e := range f.Edges {
			if e.SourceHandleString() == HandleStart {
				f.StartID = e.Target
				starts++
			}
		}
		if starts > 1 {
			return nil, flowerrors.New(flowerrors.KindFlowMalformed, nil, "multiple start edges")
		}
	}
	if f.StartID == "" {
		return nil, flowerrors.New(flowerrors.KindFlowMalformed, nil, "no start node found")
	}
	return &f, nil
}
