package flow

import (
	"fmt"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/flowerrors"
)

// Index is the built index over a Flow's nodes and edges: node lookup by
// id, and the four role-filtered edge views spec §4.A names. It owns the
// run-scoped NextFunction mutation GetNode performs, so it must not be
// shared across concurrent runs of the same Flow.
type Index struct {
	flow *Flow

	nodesByID map[string]*Node
	exec      []Edge // sourceHandle=="e-out", targetHandle=="e-in"
	exception []Edge // targetHandle=="e-in", sourceHandle!="e-out"
	arg       []Edge // targetHandle is a positional index
	kwarg     []Edge // everything else

	execBySource map[string]Edge
}

// Build validates the flow per spec §3's invariants and constructs an
// Index over it. Invariant 4 (in-range positional handle) is checked per
// node at evaluation time since the padded-length rule depends on the
// node's literal args list, not just the edge.
func Build(f *Flow) (*Index, error) {
	idx := &Index{
		flow:         f,
		nodesByID:    make(map[string]*Node, len(f.Nodes)),
		execBySource: make(map[string]Edge),
	}

	for i := range f.Nodes {
		n := &f.Nodes[i]
		if _, dup := idx.nodesByID[n.ID]; dup {
			return nil, flowerrors.New(flowerrors.KindFlowMalformed, nil, "duplicate node id %q", n.ID)
		}
		idx.nodesByID[n.ID] = n
	}

	if _, ok := idx.nodesByID[f.StartID]; !ok {
		return nil, flowerrors.New(flowerrors.KindFlowMalformed, nil, "start_id %q references unknown node", f.StartID)
	}

	for _, e := range f.Edges {
		if e.role() == RoleStart {
			continue
		}
		if _, ok := idx.nodesByID[e.Source]; !ok {
			return nil, flowerrors.New(flowerrors.KindFlowMalformed, nil, "edge %q: unknown source %q", e.ID, e.Source)
		}
		if _, ok := idx.nodesByID[e.Target]; !ok {
			return nil, flowerrors.New(flowerrors.KindFlowMalformed, nil, "edge %q: unknown target %q", e.ID, e.Target)
		}
		switch e.role() {
		case RoleExec:
			idx.exec = append(idx.exec, e)
			if _, dup := idx.execBySource[e.Source]; dup {
				return nil, flowerrors.New(flowerrors.KindFlowMalformed, nil, "node %q has more than one outgoing exec edge", e.Source)
			}
			idx.execBySource[e.Source] = e
		case RoleException:
			idx.exception = append(idx.exception, e)
		case RoleArg:
			idx.arg = append(idx.arg, e)
		case RoleKwarg:
			idx.kwarg = append(idx.kwarg, e)
		}
	}

	if err := idx.checkNoExecBackReferences(); err != nil {
		return nil, err
	}

	return idx, nil
}

// checkNoExecBackReferences resolves the Open Question in spec §9
// ("chain-driven re-entry") conservatively: an exec chain that revisits a
// node already reachable from start via exec edges is rejected at parse
// time, rather than letting the interpreter silently re-run a memoised
// node mid-run.
func (idx *Index) checkNoExecBackReferences() error {
	visited := make(map[string]bool)
	id := idx.flow.StartID
	for id != "" {
		if visited[id] {
			return flowerrors.New(flowerrors.KindFlowMalformed, nil, "exec chain revisits node %q", id)
		}
		visited[id] = true
		next, ok := idx.execBySource[id]
		if !ok {
			break
		}
		id = next.Target
	}
	return nil
}

// GetNode returns the node by id, with NextFunction set to the target of
// its outgoing exec edge (or "" if none), per spec §4.A.
func (idx *Index) GetNode(id string) (*Node, error) {
	n, ok := idx.nodesByID[id]
	if !ok {
		return nil, flowerrors.New(flowerrors.KindFlowMalformed, nil, "unknown node id %q", id)
	}
	if e, ok := idx.execBySource[id]; ok {
		n.NextFunction = e.Target
	} else {
		n.NextFunction = ""
	}
	return n, nil
}

// ExceptionEdgesFrom returns every exception edge whose source is id.
func (idx *Index) ExceptionEdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range idx.exception {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// ArgEdge pairs an arg edge with its coerced positional index.
type ArgEdge struct {
	Edge
	Index int
}

// ArgEdgesTo returns every arg edge targeting id, coercing the target
// handle to an integer index, ordered by that index ascending (spec §4.D:
// "ordered by numeric target handle").
func (idx *Index) ArgEdgesTo(id string) []ArgEdge {
	var out []ArgEdge
	for _, e := range idx.arg {
		if e.Target != id {
			continue
		}
		n, _ := e.targetHandleIndex()
		out = append(out, ArgEdge{Edge: e, Index: n})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Index < out[j-1].Index; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// KwargEdgesTo returns every kwarg edge targeting id.
func (idx *Index) KwargEdgesTo(id string) []Edge {
	var out []Edge
	for _, e := range idx.kwarg {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// Flow returns the underlying parsed flow.
func (idx *Index) Flow() *Flow { return idx.flow }

// String implements fmt.Stringer for debug dumps.
func (idx *Index) String() string {
	return fmt.Sprintf("Index{nodes=%d exec=%d exception=%d arg=%d kwarg=%d}",
		len(idx.nodesByID), len(idx.exec), len(idx.exception), len(idx.arg), len(idx.kwarg))
}
