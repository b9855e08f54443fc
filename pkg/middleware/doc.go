// Package middleware wraps the interpreter's function invocation step with
// cross-cutting concerns using the Chain of Responsibility pattern.
//
//	chain := middleware.NewChain().
//	    Use(middleware.NewLoggingMiddleware(logger)).
//	    Use(middleware.NewMetricsMiddleware(collector)).
//	    Use(middleware.NewTimeoutMiddleware(30 * time.Second))
//
//	// fn is the registry.Func that registry.Resolve returned for call.FunctionName.
//	result, err := chain.Execute(ctx, call, func(ctx context.Context, call *Invocation) (interface{}, error) {
//	    return fn(ctx, call.NodeID, call.Args, call.Kwargs)
//	})
package middleware
