package interpreter

import (
	"context"
	"fmt"
	"sync"

	"github.com/PaesslerAG/jsonpath"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/flowerrors"
)

// branch implements spec §4.E: requires a boolean condition, mutates the
// calling node's next_function to trueID or falseID, and returns the
// chosen id. Grounded on the source's Process.branch, which does the same
// mutation via node.data.next_function.
func (in *Interpreter) branch(_ context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	nodeID, condition, trueID, falseID, err := branchArgs(args)
	if err != nil {
		return nil, flowerrors.New(flowerrors.KindBranchError, err, "branch")
	}

	node, getErr := in.idx.GetNode(nodeID)
	if getErr != nil {
		return nil, flowerrors.New(flowerrors.KindBranchError, getErr, "branch: unknown node %q", nodeID)
	}

	b, ok := condition.(bool)
	if !ok {
		return nil, flowerrors.New(flowerrors.KindBranchError, nil, "condition must be a boolean, got %T", condition)
	}

	chosen := falseID
	if b {
		chosen = trueID
	}
	node.NextFunction = chosen
	return chosen, nil
}

func branchArgs(args []interface{}) (nodeID string, condition interface{}, trueID, falseID string, err error) {
	if len(args) < 2 {
		return "", nil, "", "", fmt.Errorf("branch requires (node_id, condition, true_id, false_id)")
	}
	nodeID, _ = args[0].(string)
	condition = args[1]
	if len(args) > 2 {
		trueID, _ = args[2].(string)
	}
	if len(args) > 3 {
		falseID, _ = args[3].(string)
	}
	return nodeID, condition, trueID, falseID, nil
}

// sequence implements spec §4.E: evaluates each id in order in the current
// environment, propagating the first error, grounded on the source's
// Process.sequence.
func (in *Interpreter) sequence(ctx context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, flowerrors.New(flowerrors.KindSequenceError, nil, "sequence requires (node_id, [ids])")
	}
	ids, err := toStringSlice(args[1])
	if err != nil {
		return nil, flowerrors.New(flowerrors.KindSequenceError, err, "sequence")
	}
	for _, id := range ids {
		if err := in.evaluate(ctx, id); err != nil {
			return nil, flowerrors.New(flowerrors.KindSequenceError, err, "sequence: evaluating %q", id)
		}
	}
	return "Completed", nil
}

// parallel implements spec §4.E, strategy (a) from SPEC_FULL.md's Open
// Question decision: cooperative goroutines sharing the single
// env.Environment, which is already mutex-guarded, so no per-task staging
// buffer is required. Grounded on the source's Process.parallel, which
// spawns one OS thread per id and joins them all; here a goroutine per id
// is joined with a WaitGroup instead.
func (in *Interpreter) parallel(ctx context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, flowerrors.New(flowerrors.KindSequenceError, nil, "parallel requires (node_id, [ids])")
	}
	ids, err := toStringSlice(args[1])
	if err != nil {
		return nil, flowerrors.New(flowerrors.KindSequenceError, err, "parallel")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			if in.Cancelled() {
				return
			}
			errs[i] = in.evaluate(ctx, id)
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, flowerrors.New(flowerrors.KindSequenceError, err, "parallel: evaluating %q", ids[i])
		}
	}
	return "Completed", nil
}

// forEach implements spec §4.E: snapshots the global (non "__"-scoped) keys,
// runs the body once per array element against a fresh copy of that
// snapshot, folds each iteration's global writes back, and records each
// iteration's local keys under "{id}__{index}". Grounded on the source's
// Process.for_each.
func (in *Interpreter) forEach(ctx context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) < 3 {
		return nil, flowerrors.New(flowerrors.KindForEachError, nil, "for_each requires (node_id, array, body_id)")
	}
	nodeID, _ := args[0].(string)
	array, ok := toSlice(args[1])
	if !ok {
		return nil, flowerrors.New(flowerrors.KindForEachError, nil, "array must be a sequence, got %T", args[1])
	}
	bodyID, _ := args[2].(string)

	globalKeys := map[string]bool{}
	snapshot := in.env.SnapshotGlobals()
	for k := range snapshot {
		globalKeys[k] = true
	}

	if in.limits.MaxIterations > 0 && len(array) > in.limits.MaxIterations {
		return nil, flowerrors.New(flowerrors.KindForEachError, nil, "for_each: array length %d exceeds iteration limit (%d)", len(array), in.limits.MaxIterations)
	}

	iterationBuckets := make(map[string]interface{}, len(array))

	for index, item := range array {
		in.env.Replace(snapshot)
		in.env.Set(nodeID, item)

		if err := in.evaluate(ctx, bodyID); err != nil {
			return nil, flowerrors.New(flowerrors.KindForEachError, err, "for_each: iteration %d", index)
		}

		local := in.env.All()
		localOnly := make(map[string]interface{})
		for k, v := range local {
			if globalKeys[k] {
				snapshot[k] = v
			} else {
				localOnly[k] = v
			}
		}
		iterationBuckets[fmt.Sprintf("%s__%d", nodeID, index)] = localOnly
	}

	in.env.Replace(snapshot)
	in.env.Merge(iterationBuckets)
	return "Completed", nil
}

// setVariable implements spec §4.E: writes value under name and returns it.
// Grounded on the source's Process.set_variable.
func (in *Interpreter) setVariable(_ context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("set_variable requires (node_id, name, value)")
	}
	name, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("set_variable: name must be a string")
	}
	value := args[2]
	in.env.Set(name, value)
	return value, nil
}

// extractJSON implements spec §4.E: evaluates a JSONPath-style expression
// against a mapping, returning the single match if there is exactly one,
// otherwise the full list. Not present in the source (its
// JSONExtractionError is declared but never raised); implemented here
// using PaesslerAG/jsonpath, grounded in the retrieval pack's
// gardener-gardener and patali-yantra go.mod entries.
func (in *Interpreter) extractJSON(_ context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) < 3 {
		return nil, flowerrors.New(flowerrors.KindJSONExtractionError, nil, "extract_json requires (node_id, obj, expression)")
	}
	obj := args[1]
	expression, _ := args[2].(string)

	if _, ok := obj.(map[string]interface{}); !ok {
		return nil, flowerrors.New(flowerrors.KindJSONExtractionError, nil, "extract_json requires a mapping, got %T", obj)
	}

	result, err := jsonpath.Get(expression, obj)
	if err != nil {
		return nil, flowerrors.New(flowerrors.KindJSONExtractionError, err, "extract_json: evaluating %q", expression)
	}

	if matches, ok := result.([]interface{}); ok && len(matches) != 1 {
		return matches, nil
	}
	if matches, ok := result.([]interface{}); ok && len(matches) == 1 {
		return matches[0], nil
	}
	return result, nil
}

func toStringSlice(v interface{}) ([]string, error) {
	list, ok := toSlice(v)
	if !ok {
		return nil, fmt.Errorf("expected a sequence, got %T", v)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a sequence of strings, got element of type %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
