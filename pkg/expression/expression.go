// Package expression provides expression evaluation for flow conditions and
// value transformations, backed by expr-lang/expr.
package expression

import (
	"sync"
)

// Context provides access to interpreter state during expression evaluation.
type Context struct {
	NodeResults map[string]interface{} // Results from evaluated nodes, keyed by node id
	Variables   map[string]interface{} // Flattened environment variables
	ContextVars map[string]interface{} // Context variables/constants
}

var (
	globalEngine *ExprEngine
	engineOnce   sync.Once
)

// getEngine returns the singleton expression engine.
func getEngine() *ExprEngine {
	engineOnce.Do(func() {
		globalEngine = NewExprEngine()
	})
	return globalEngine
}

// Evaluate evaluates an expression and returns a boolean result. Supports:
//   - Comparisons with both operands written out: "value > 100"
//   - Node references: "node.id.output > 100"
//   - Variable references: "variables.count > 10"
//   - Context references: "context.maxValue < 50"
//   - Boolean operators: "&&", "||", "!"
//   - String operations: "contains(str, substr)", "startsWith()", etc.
func Evaluate(expression string, input interface{}, ctx *Context) (bool, error) {
	ctx = withItemInput(ctx, input)
	engine := getEngine()
	return engine.EvaluateBoolean(expression, input, ctx)
}

// EvaluateExpression evaluates an expression and returns its value, not just
// a boolean. Used for set_variable and other value-producing primitives.
//   - Arithmetic expressions: "item.age * 2"
//   - Ternary operator: "condition ? value1 : value2"
//   - String concatenation: "accumulator + item"
//   - Field access: "item.field", "item.nested.field"
func EvaluateExpression(expression string, input interface{}, ctx *Context) (interface{}, error) {
	ctx = withItemInput(ctx, input)
	engine := getEngine()
	return engine.EvaluateValue(expression, input, ctx)
}

// withItemInput ensures a non-nil context, and that input is reachable as
// both "item" and "input" within it, without mutating the caller's context.
func withItemInput(ctx *Context, input interface{}) *Context {
	if ctx == nil {
		ctx = &Context{
			NodeResults: make(map[string]interface{}),
			Variables:   make(map[string]interface{}),
			ContextVars: make(map[string]interface{}),
		}
	}
	if input == nil {
		return ctx
	}
	_, hasItem := ctx.Variables["item"]
	_, hasInput := ctx.Variables["input"]
	if hasItem && hasInput {
		return ctx
	}
	newCtx := &Context{
		NodeResults: ctx.NodeResults,
		Variables:   make(map[string]interface{}),
		ContextVars: ctx.ContextVars,
	}
	for k, v := range ctx.Variables {
		newCtx.Variables[k] = v
	}
	if !hasItem {
		newCtx.Variables["item"] = input
	}
	if !hasInput {
		newCtx.Variables["input"] = input
	}
	return newCtx
}
