package flow

import "testing"

func TestParse_ExplicitStartID(t *testing.T) {
	f, err := Parse([]byte(`{"start_id":"a","nodes":[{"id":"a"}],"edges":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.StartID != "a" {
		t.Fatalf("got StartID %q, want %q", f.StartID, "a")
	}
}

func TestParse_DerivesStartFromStartEdge(t *testing.T) {
	payload := `{
		"nodes": [{"id": "n1"}],
		"edges": [{"source": "n1", "target": "n1", "sourceHandle": "start"}]
	}`
	f, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.StartID != "n1" {
		t.Fatalf("got StartID %q, want %q", f.StartID, "n1")
	}
}

func TestParse_NoStartIsFlowMalformed(t *testing.T) {
	_, err := Parse([]byte(`{"nodes":[{"id":"a"}],"edges":[]}`))
	if err == nil {
		t.Fatal("expected error for flow with no start edge and no start_id")
	}
}

func TestParse_MultipleStartEdgesIsFlowMalformed(t *testing.T) {
	payload := `{
		"nodes": [{"id": "a"}, {"id": "b"}],
		"edges": [
			{"source": "x", "target": "a", "sourceHandle": "start"},
			{"source": "y", "target": "b", "sourceHandle": "start"}
		]
	}`
	_, err := Parse([]byte(payload))
	if err == nil {
		t.Fatal("expected error for multiple start edges")
	}
}

func TestNode_UnmarshalJSON_FlattensArgsFromMappingList(t *testing.T) {
	payload := `{"id": "n1", "function": "operator.add", "args": [{"x": 1}, {"y": 2}]}`
	var n Node
	if err := n.UnmarshalJSON([]byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.Args) != 2 {
		t.Fatalf("got %d args, want 2: %v", len(n.Args), n.Args)
	}
	if n.Args[0] != float64(1) || n.Args[1] != float64(2) {
		t.Fatalf("got args %v, want [1, 2]", n.Args)
	}
}

func TestNode_UnmarshalJSON_FlattensKwargsFromMappingList(t *testing.T) {
	payload := `{"id": "n1", "kwargs": [{"a": 1}, {"b": 2}]}`
	var n Node
	if err := n.UnmarshalJSON([]byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.Kwargs) != 2 || n.Kwargs["a"] != float64(1) || n.Kwargs["b"] != float64(2) {
		t.Fatalf("got kwargs %v, want {a:1, b:2}", n.Kwargs)
	}
}

func TestNode_UnmarshalJSON_FlattensPlainKwargMap(t *testing.T) {
	payload := `{"id": "n1", "kwargs": {"a": 1}}`
	var n Node
	if err := n.UnmarshalJSON([]byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kwargs["a"] != float64(1) {
		t.Fatalf("got kwargs %v, want {a:1}", n.Kwargs)
	}
}

func TestNode_UnmarshalJSON_FlattensDataWrapper(t *testing.T) {
	payload := `{"id": "n1", "data": {"function": "operator.add", "args": [1, 2]}}`
	var n Node
	if err := n.UnmarshalJSON([]byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Function != "operator.add" {
		t.Fatalf("got function %q, want operator.add", n.Function)
	}
	if len(n.Args) != 2 {
		t.Fatalf("got %d args, want 2", len(n.Args))
	}
}

func TestEdge_Role(t *testing.T) {
	tests := []struct {
		name string
		edge Edge
		want Role
	}{
		{"start", Edge{SourceHandle: "start", TargetHandle: "anything"}, RoleStart},
		{"exec", Edge{SourceHandle: "e-out", TargetHandle: "e-in"}, RoleExec},
		{"exception", Edge{SourceHandle: "onError", TargetHandle: "e-in"}, RoleException},
		{"arg-int", Edge{SourceHandle: "x", TargetHandle: 0}, RoleArg},
		{"arg-string-digit", Edge{SourceHandle: "x", TargetHandle: "1"}, RoleArg},
		{"kwarg", Edge{SourceHandle: "x", TargetHandle: "name"}, RoleKwarg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.edge.role(); got != tt.want {
				t.Errorf("role() = %v, want %v", got, tt.want)
			}
		})
	}
}
