// Package registry implements the function registry described in spec
// §4.B: resolving a flow node's "module.function" name to a callable,
// rewriting the "custom" module prefix, and enforcing an optional
// allow-list. Go has no sync/async distinction at the call-site the way
// the source's inspect.iscoroutinefunction does — every registered Func
// takes a context.Context and the interpreter "awaits" it uniformly by
// just calling it; a Func that needs to block on I/O does so behind that
// context the same way the source's coroutine functions awaited.
package registry

import (
	"context"
	"strings"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/flowerrors"
)

// Func is a host callable a node's "function" field can name. nodeID is
// the calling node's id, passed to every control-flow primitive per spec
// §4.E; ordinary host functions ignore it.
type Func func(ctx context.Context, nodeID string, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// ControlFlowNames is the built-in set spec §4.B requires the interpreter
// to bind directly to its own methods, bypassing module resolution.
var ControlFlowNames = map[string]bool{
	"branch":       true,
	"sequence":     true,
	"parallel":     true,
	"for_each":     true,
	"set_variable": true,
	"extract_json": true,
}

// customModulePrefix is rewritten to the project's custom-function
// namespace, per spec §4.B and the source's `module_name == "custom"`
// special case in app/main.py / processor.py.
const customModulePrefix = "custom"

// Registry resolves function names to Funcs and enforces an allow-list.
type Registry struct {
	funcs         map[string]Func
	customModule  string
	allowList     map[string]bool
	allowListSet  bool
}

// New creates an empty registry. customModule is the namespace a "custom."
// prefix is rewritten to for error messages and lookups (e.g.
// "customfuncs"); pass "" to keep the literal "custom" prefix.
func New(customModule string) *Registry {
	return &Registry{
		funcs:        make(map[string]Func),
		customModule: customModule,
	}
}

// Register binds name (e.g. "operator.add", "http.get") to fn.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// SetAllowList restricts Resolve to the given function names plus the
// control-flow set, which is implicitly allowed whenever any allow-list is
// in effect (spec §4.B). Any call activates the check: an empty or nil
// slice allows nothing but control-flow primitives. A registry on which
// SetAllowList is never called allows every function.
func (r *Registry) SetAllowList(names []string) {
	r.allowList = make(map[string]bool, len(names))
	for _, n := range names {
		r.allowList[n] = true
	}
	r.allowListSet = true
}

// IsAllowed reports whether name may be called under the current
// allow-list. Always true when no allow-list has been set.
func (r *Registry) IsAllowed(name string) bool {
	if !r.allowListSet {
		return true
	}
	if ControlFlowNames[name] {
		return true
	}
	return r.allowList[name]
}

// rewriteModule applies the "custom" prefix rewrite from spec §4.B.
func (r *Registry) rewriteModule(name string) string {
	if r.customModule == "" {
		return name
	}
	if name == customModulePrefix || strings.HasPrefix(name, customModulePrefix+".") {
		return r.customModule + strings.TrimPrefix(name, customModulePrefix)
	}
	return name
}

// Resolve looks up the Func registered for a fully-qualified "module.function"
// name (after the custom-prefix rewrite). Returns a *flowerrors.Error with
// Kind ModuleNotFoundError if nothing is registered under that name.
func (r *Registry) Resolve(name string) (Func, error) {
	rewritten := r.rewriteModule(name)
	if fn, ok := r.funcs[rewritten]; ok {
		return fn, nil
	}
	if fn, ok := r.funcs[name]; ok {
		return fn, nil
	}
	return nil, flowerrors.New(flowerrors.KindModuleNotFound, nil, "no function registered for %q", name)
}
