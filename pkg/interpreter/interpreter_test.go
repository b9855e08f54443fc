package interpreter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/env"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/flow"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/flowerrors"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/logging"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/registry"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/updates"
)

func newTestInterpreter(t *testing.T, f *flow.Flow, reg *registry.Registry) *Interpreter {
	t.Helper()
	idx, err := flow.Build(f)
	if err != nil {
		t.Fatalf("flow.Build: %v", err)
	}
	if reg == nil {
		reg = registry.New("")
		registry.RegisterOperatorModule(reg)
		registry.RegisterExprModule(reg)
	}
	e := env.New()
	for k, v := range f.Variables {
		e.Set(k, v)
	}
	return New(idx, e, reg, updates.NewManager(), nil, "test-run", Limits{})
}

// TestRun_AddThenSquare is spec §8 scenario 1.
func TestRun_AddThenSquare(t *testing.T) {
	f := &flow.Flow{
		StartID: "1",
		Nodes: []flow.Node{
			{ID: "1", Function: "operator.add", Args: []interface{}{float64(1), float64(2)}},
			{ID: "2", Function: "operator.pow", Args: []interface{}{nil, float64(2)}},
		},
		Edges: []flow.Edge{
			{Source: "1", Target: "2", SourceHandle: "e-out", TargetHandle: "e-in"},
			{Source: "1", Target: "2", TargetHandle: float64(0)},
		},
	}
	in := newTestInterpreter(t, f, nil)

	result, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["1"] != float64(3) {
		t.Fatalf("env[1] = %v, want 3", result["1"])
	}
	if result["2"] != float64(9) {
		t.Fatalf("env[2] = %v, want 9", result["2"])
	}
}

// TestRun_Sequence is spec §8 scenario 4.
func TestRun_Sequence(t *testing.T) {
	f := &flow.Flow{
		StartID: "s",
		Nodes: []flow.Node{
			{ID: "s", Function: "sequence", Args: []interface{}{[]interface{}{"2", "3"}}},
			{ID: "2", Function: "operator.add", Args: []interface{}{float64(1), float64(1)}},
			{ID: "3", Function: "operator.mul", Args: []interface{}{float64(2), float64(5)}},
		},
	}
	in := newTestInterpreter(t, f, nil)

	result, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["2"] != float64(2) || result["3"] != float64(10) {
		t.Fatalf("got env %v, want {2:2, 3:10, ...}", result)
	}
	if result["s"] != "Completed" {
		t.Fatalf("got sequence result %v, want Completed", result["s"])
	}
}

// TestBranch_MutatesNextFunctionAndReturnsChosenID is spec §8 scenario 2.
func TestBranch_MutatesNextFunctionAndReturnsChosenID(t *testing.T) {
	f := &flow.Flow{
		StartID: "b",
		Nodes: []flow.Node{
			{ID: "b", Function: "branch", Args: []interface{}{true, "T", "F"}},
			{ID: "T"},
			{ID: "F"},
		},
	}
	in := newTestInterpreter(t, f, nil)

	result, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["b"] != "T" {
		t.Fatalf("got branch result %v, want T", result["b"])
	}
}

func TestBranch_NonBooleanConditionIsBranchError(t *testing.T) {
	f := &flow.Flow{
		StartID: "b",
		Nodes: []flow.Node{
			{ID: "b", Function: "branch", Args: []interface{}{"not-a-bool", "T", "F"}},
			{ID: "T"},
			{ID: "F"},
		},
	}
	in := newTestInterpreter(t, f, nil)

	_, err := in.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error for a non-boolean branch condition")
	}
	var procErr *flowerrors.ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected a ProcessError, got %T: %v", err, err)
	}
	if !errors.Is(procErr.Cause, flowerrors.ErrBranch) {
		t.Fatalf("expected the cause to be a BranchError, got %v", procErr.Cause)
	}
}

// TestForEach_Squares is spec §8 scenario 3. "test" must already exist as a
// global before the loop starts (seeded here via Flow.Variables) for its
// write inside the body to escape to the top-level environment: per
// original_source/app/utils/processor.py's for_each, global_variable_keys
// is frozen from the keys present *before* the loop runs, so a name first
// introduced inside the body stays bucketed per iteration rather than
// escaping (see DESIGN.md).
func TestForEach_Squares(t *testing.T) {
	f := &flow.Flow{
		StartID:   "1",
		Variables: map[string]interface{}{"test": "pending"},
		Nodes: []flow.Node{
			{ID: "1", Function: "for_each", Args: []interface{}{[]interface{}{float64(1), float64(2), float64(3)}, "body"}},
			{ID: "2", Function: "operator.mul", Args: []interface{}{nil, float64(3)}},
			{ID: "3", Function: "set_variable", Args: []interface{}{"test", "success"}},
			{ID: "body", Function: "sequence", Args: []interface{}{[]interface{}{"2", "3"}}},
		},
		Edges: []flow.Edge{
			{Source: "1", Target: "2", SourceHandle: "1", TargetHandle: float64(0)},
		},
	}
	in := newTestInterpreter(t, f, nil)

	result, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["test"] != "success" {
		t.Fatalf("got env[test] = %v, want success", result["test"])
	}

	want := []map[string]interface{}{
		{"1": float64(1), "2": float64(3), "3": "success"},
		{"1": float64(2), "2": float64(6), "3": "success"},
		{"1": float64(3), "2": float64(9), "3": "success"},
	}
	for i, w := range want {
		key := "1__" + string(rune('0'+i))
		bucket, ok := result[key].(map[string]interface{})
		if !ok {
			t.Fatalf("missing iteration bucket %q in env %v", key, result)
		}
		for k, v := range w {
			if bucket[k] != v {
				t.Fatalf("bucket %q[%q] = %v, want %v", key, k, bucket[k], v)
			}
		}
	}
}

func TestSetVariable_WritesAndReturnsValue(t *testing.T) {
	f := &flow.Flow{
		StartID: "s",
		Nodes: []flow.Node{
			{ID: "s", Function: "set_variable", Args: []interface{}{"greeting", "hello"}},
		},
	}
	in := newTestInterpreter(t, f, nil)

	result, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["greeting"] != "hello" {
		t.Fatalf("got env[greeting] = %v, want hello", result["greeting"])
	}
	if result["s"] != "hello" {
		t.Fatalf("got env[s] = %v, want hello (set_variable's own return value)", result["s"])
	}
}

func TestExtractJSON_SingleMatchReturnsScalar(t *testing.T) {
	f := &flow.Flow{
		StartID: "e",
		Nodes: []flow.Node{
			{ID: "e", Function: "extract_json", Args: []interface{}{
				map[string]interface{}{"user": map[string]interface{}{"name": "ada"}},
				"$.user.name",
			}},
		},
	}
	in := newTestInterpreter(t, f, nil)

	result, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["e"] != "ada" {
		t.Fatalf("got env[e] = %v, want ada", result["e"])
	}
}

func TestExtractJSON_NonMappingIsJSONExtractionError(t *testing.T) {
	f := &flow.Flow{
		StartID: "e",
		Nodes: []flow.Node{
			{ID: "e", Function: "extract_json", Args: []interface{}{"not-a-map", "$.x"}},
		},
	}
	in := newTestInterpreter(t, f, nil)

	_, err := in.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error for non-mapping extract_json input")
	}
}

func TestAllowList_RejectsDisallowedFunction(t *testing.T) {
	reg := registry.New("")
	registry.RegisterOperatorModule(reg)
	reg.SetAllowList([]string{}) // nothing but control-flow allowed

	f := &flow.Flow{
		StartID: "1",
		Nodes: []flow.Node{
			{ID: "1", Function: "operator.add", Args: []interface{}{float64(1), float64(2)}},
		},
	}
	in := newTestInterpreter(t, f, reg)

	_, err := in.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error for a disallowed function")
	}
	var procErr *flowerrors.ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected a ProcessError, got %T: %v", err, err)
	}
	if !errors.Is(procErr.Cause, flowerrors.ErrInvalidFunction) {
		t.Fatalf("expected the cause to be InvalidFunction, got %v", procErr.Cause)
	}
}

func TestResolveArgs_OutOfRangePositionalIndexIsArgumentError(t *testing.T) {
	f := &flow.Flow{
		StartID: "1",
		Nodes: []flow.Node{
			{ID: "1", Function: "operator.add", Args: []interface{}{float64(1)}},
			{ID: "2", Function: "operator.neg", Args: []interface{}{float64(1)}},
		},
		Edges: []flow.Edge{
			{Source: "2", Target: "1", TargetHandle: float64(5)},
		},
	}
	in := newTestInterpreter(t, f, nil)

	_, err := in.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error for an out-of-range positional handle")
	}
}

func TestResolveArgs_LazilyEvaluatesUpstreamProducer(t *testing.T) {
	// "2" demands "1"'s result via an arg edge before "1" has been chained
	// to, so it must be evaluated on demand rather than being missing.
	f := &flow.Flow{
		StartID: "2",
		Nodes: []flow.Node{
			{ID: "1", Function: "operator.add", Args: []interface{}{float64(4), float64(5)}},
			{ID: "2", Function: "operator.neg", Args: []interface{}{nil}},
		},
		Edges: []flow.Edge{
			{Source: "1", Target: "2", TargetHandle: float64(0)},
		},
	}
	in := newTestInterpreter(t, f, nil)

	result, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["1"] != float64(9) {
		t.Fatalf("got env[1] = %v, want 9", result["1"])
	}
	if result["2"] != float64(-9) {
		t.Fatalf("got env[2] = %v, want -9", result["2"])
	}
}

func TestSetExceptions_InjectsExceptionEdgeTargetAsKwarg(t *testing.T) {
	f := &flow.Flow{
		StartID: "b",
		Nodes: []flow.Node{
			{ID: "b", Function: "branch", Args: []interface{}{true, "T", "F"}},
			{ID: "T"},
			{ID: "F"},
			{ID: "recover"},
		},
		Edges: []flow.Edge{
			{Source: "b", Target: "recover", SourceHandle: "onError", TargetHandle: "e-in"},
		},
	}
	idx, err := flow.Build(f)
	if err != nil {
		t.Fatalf("flow.Build: %v", err)
	}
	reg := registry.New("")
	registry.RegisterOperatorModule(reg)
	in := New(idx, env.New(), reg, updates.NewManager(), nil, "run", Limits{})

	node, err := idx.GetNode("b")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if err := in.setExceptions(node); err != nil {
		t.Fatalf("setExceptions: %v", err)
	}
	if node.Kwargs["onError"] != "recover" {
		t.Fatalf("got kwargs %v, want onError=recover", node.Kwargs)
	}
}

func TestCancellation_StopsChainAfterInFlightNodeCompletes(t *testing.T) {
	f := &flow.Flow{
		StartID: "1",
		Nodes: []flow.Node{
			{ID: "1", Function: "operator.add", Args: []interface{}{float64(1), float64(1)}},
			{ID: "2", Function: "operator.add", Args: []interface{}{float64(1), float64(1)}},
			{ID: "3", Function: "operator.add", Args: []interface{}{float64(1), float64(1)}},
		},
		Edges: []flow.Edge{
			{Source: "1", Target: "2", SourceHandle: "e-out", TargetHandle: "e-in"},
			{Source: "2", Target: "3", SourceHandle: "e-out", TargetHandle: "e-in"},
		},
	}
	in := newTestInterpreter(t, f, nil)
	in.Cancel()

	result, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected no nodes evaluated once cancelled before Run starts, got %v", result)
	}
}

func TestMemoisation_NodeEvaluatedAtMostOnce(t *testing.T) {
	calls := 0
	reg := registry.New("")
	reg.Register("count.call", func(_ context.Context, _ string, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
		calls++
		return calls, nil
	})

	// Two distinct nodes ("2" and "3") both demand "1" via arg edges; "1"
	// must only execute once thanks to memoisation.
	f := &flow.Flow{
		StartID: "2",
		Nodes: []flow.Node{
			{ID: "1", Function: "count.call"},
			{ID: "2", Function: "operator.neg", Args: []interface{}{nil}},
			{ID: "3", Function: "operator.neg", Args: []interface{}{nil}},
		},
		Edges: []flow.Edge{
			{Source: "1", Target: "2", TargetHandle: float64(0)},
			{Source: "1", Target: "3", TargetHandle: float64(0)},
		},
	}
	idx, err := flow.Build(f)
	if err != nil {
		t.Fatalf("flow.Build: %v", err)
	}
	registry.RegisterOperatorModule(reg)
	in := New(idx, env.New(), reg, updates.NewManager(), nil, "run", Limits{})

	if err := in.evaluate(context.Background(), "2"); err != nil {
		t.Fatalf("evaluate(2): %v", err)
	}
	if err := in.evaluate(context.Background(), "3"); err != nil {
		t.Fatalf("evaluate(3): %v", err)
	}
	if calls != 1 {
		t.Fatalf("got %d calls to node 1, want exactly 1", calls)
	}
}

// TestRun_LogsLifecycleAndNodeTrace checks that Run emits an info-level
// "run started"/"run completed" pair stamped with run_id and flow_id, and a
// debug-level trace line per evaluated node.
func TestRun_LogsLifecycleAndNodeTrace(t *testing.T) {
	f := &flow.Flow{
		ID:      "flow-log",
		StartID: "1",
		Nodes: []flow.Node{
			{ID: "1", Function: "operator.add", Args: []interface{}{float64(1), float64(2)}},
		},
	}
	idx, err := flow.Build(f)
	if err != nil {
		t.Fatalf("flow.Build: %v", err)
	}
	reg := registry.New("")
	registry.RegisterOperatorModule(reg)

	buf := &bytes.Buffer{}
	logger := logging.New(logging.Config{Level: "debug", Output: buf})
	in := New(idx, env.New(), reg, updates.NewManager(), logger, "run-log", Limits{})

	if _, err := in.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		`"msg":"run started"`,
		`"run_id":"run-log"`,
		`"flow_id":"flow-log"`,
		`"msg":"evaluating node"`,
		`"node_id":"1"`,
		`"function_name":"operator.add"`,
		`"msg":"run completed"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected log output to contain %s, got: %s", want, output)
		}
	}
}

// TestRun_LogsErrorOnFailure checks that a failed run logs at error level
// with the wrapped ProcessRunError attached.
func TestRun_LogsErrorOnFailure(t *testing.T) {
	f := &flow.Flow{
		StartID: "1",
		Nodes: []flow.Node{
			{ID: "1", Function: "not.registered"},
		},
	}
	idx, err := flow.Build(f)
	if err != nil {
		t.Fatalf("flow.Build: %v", err)
	}
	reg := registry.New("")

	buf := &bytes.Buffer{}
	logger := logging.New(logging.Config{Level: "debug", Output: buf})
	in := New(idx, env.New(), reg, updates.NewManager(), logger, "run-log", Limits{})

	if _, err := in.Run(context.Background()); err == nil {
		t.Fatal("expected an error for an unregistered function")
	}

	output := buf.String()
	if !strings.Contains(output, `"level":"ERROR"`) || !strings.Contains(output, `"msg":"run failed"`) {
		t.Errorf("expected an error-level \"run failed\" log line, got: %s", output)
	}
}
