// Package middleware provides the Chain of Responsibility pattern for
// wrapping the interpreter's per-node function invocation step. This lets
// cross-cutting concerns — logging, metrics, timeouts — wrap every function
// call the interpreter makes without the interpreter itself knowing about
// them.
package middleware

import "context"

// Invocation describes a single function call the interpreter is about to
// make while evaluating a node.
type Invocation struct {
	RunID        string
	FlowID       string
	NodeID       string
	FunctionName string
	Args         []interface{}
	Kwargs       map[string]interface{}
}

// Handler executes an invocation and returns its result.
type Handler func(ctx context.Context, call *Invocation) (interface{}, error)

// Middleware can inspect, modify, or short-circuit a function invocation.
type Middleware interface {
	// Process handles the invocation, optionally calling next to continue
	// the chain. Returning without calling next short-circuits the call.
	Process(ctx context.Context, call *Invocation, next Handler) (interface{}, error)

	// Name identifies the middleware for logging and debugging.
	Name() string
}

// Chain is an ordered sequence of middleware wrapping a final Handler.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates an empty middleware chain.
func NewChain() *Chain {
	return &Chain{}
}

// Use appends middleware to the chain, in call order.
func (c *Chain) Use(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Execute runs the chain followed by handler. With middleware [M1, M2],
// execution order is M1.pre -> M2.pre -> handler -> M2.post -> M1.post.
func (c *Chain) Execute(ctx context.Context, call *Invocation, handler Handler) (interface{}, error) {
	if len(c.middlewares) == 0 {
		return handler(ctx, call)
	}

	index := 0
	var next Handler
	next = func(ctx context.Context, call *Invocation) (interface{}, error) {
		if index >= len(c.middlewares) {
			return handler(ctx, call)
		}
		m := c.middlewares[index]
		index++
		return m.Process(ctx, call, next)
	}

	return next(ctx, call)
}

// Len returns the number of middleware in the chain.
func (c *Chain) Len() int {
	return len(c.middlewares)
}

// Middlewares returns a copy of the chain's middleware, in call order.
func (c *Chain) Middlewares() []Middleware {
	result := make([]Middleware, len(c.middlewares))
	copy(result, c.middlewares)
	return result
}
