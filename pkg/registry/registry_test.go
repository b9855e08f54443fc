package registry

import (
	"context"
	"testing"
)

func echoFunc(_ context.Context, _ string, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

func TestRegistry_ResolveRegisteredFunc(t *testing.T) {
	r := New("")
	r.Register("operator.add", echoFunc)

	fn, err := r.Resolve("operator.add")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fn == nil {
		t.Fatal("expected a non-nil func")
	}
}

func TestRegistry_ResolveUnknownIsModuleNotFound(t *testing.T) {
	r := New("")
	if _, err := r.Resolve("nope.nope"); err == nil {
		t.Fatal("expected error resolving an unregistered function")
	}
}

func TestRegistry_CustomPrefixRewrite(t *testing.T) {
	r := New("internal/customfuncs")
	r.Register("internal/customfuncs.greet", echoFunc)

	if _, err := r.Resolve("custom.greet"); err != nil {
		t.Fatalf("expected custom.greet to resolve via rewrite, got error: %v", err)
	}
}

func TestRegistry_NoAllowListAllowsEverything(t *testing.T) {
	r := New("")
	if !r.IsAllowed("anything.goes") {
		t.Fatal("expected everything allowed when no allow-list is set")
	}
}

func TestRegistry_AllowListRestrictsFunctions(t *testing.T) {
	r := New("")
	r.SetAllowList([]string{"operator.add"})

	if !r.IsAllowed("operator.add") {
		t.Fatal("expected operator.add to be allowed")
	}
	if r.IsAllowed("requests.get") {
		t.Fatal("expected requests.get to be rejected under the allow-list")
	}
}

func TestRegistry_AllowListImplicitlyAllowsControlFlow(t *testing.T) {
	r := New("")
	r.SetAllowList([]string{})

	for name := range ControlFlowNames {
		if !r.IsAllowed(name) {
			t.Fatalf("expected control-flow primitive %q to be implicitly allowed", name)
		}
	}
}

func TestRegistry_EmptyAllowListRejectsEverythingElse(t *testing.T) {
	r := New("")
	r.SetAllowList([]string{})
	if r.IsAllowed("operator.add") {
		t.Fatal("expected empty, non-nil allow-list to reject non-control-flow functions")
	}
}
