package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/expression"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/httpclient"
)

// RegisterOperatorModule binds the arithmetic/comparison primitives spec
// §8's literal scenarios exercise (operator.add, operator.pow, ...), named
// after Python's operator module that the source calls directly
// (app/utils/processor.py resolves "module.function" via bare
// importlib.import_module, and the demo flows in the retrieval pack's
// teacher use exactly this naming).
func RegisterOperatorModule(r *Registry) {
	num := func(v interface{}) (float64, error) {
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		default:
			return 0, fmt.Errorf("operator: expected a number, got %T", v)
		}
	}
	binary := func(op func(a, b float64) float64) Func {
		return func(_ context.Context, _ string, args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("operator: requires 2 arguments, got %d", len(args))
			}
			a, err := num(args[0])
			if err != nil {
				return nil, err
			}
			b, err := num(args[1])
			if err != nil {
				return nil, err
			}
			return op(a, b), nil
		}
	}
	cmp := func(op func(a, b float64) bool) Func {
		return func(_ context.Context, _ string, args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("operator: requires 2 arguments, got %d", len(args))
			}
			a, err := num(args[0])
			if err != nil {
				return nil, err
			}
			b, err := num(args[1])
			if err != nil {
				return nil, err
			}
			return op(a, b), nil
		}
	}

	r.Register("operator.add", binary(func(a, b float64) float64 { return a + b }))
	r.Register("operator.sub", binary(func(a, b float64) float64 { return a - b }))
	r.Register("operator.mul", binary(func(a, b float64) float64 { return a * b }))
	r.Register("operator.truediv", binary(func(a, b float64) float64 { return a / b }))
	r.Register("operator.mod", binary(func(a, b float64) float64 {
		for b != 0 && a >= b {
			a -= b
		}
		return a
	}))
	r.Register("operator.pow", binary(func(a, b float64) float64 {
		result := 1.0
		for i := 0; i < int(b); i++ {
			result *= a
		}
		return result
	}))
	r.Register("operator.eq", cmp(func(a, b float64) bool { return a == b }))
	r.Register("operator.ne", cmp(func(a, b float64) bool { return a != b }))
	r.Register("operator.lt", cmp(func(a, b float64) bool { return a < b }))
	r.Register("operator.le", cmp(func(a, b float64) bool { return a <= b }))
	r.Register("operator.gt", cmp(func(a, b float64) bool { return a > b }))
	r.Register("operator.ge", cmp(func(a, b float64) bool { return a >= b }))
	r.Register("operator.neg", func(_ context.Context, _ string, args []interface{}, _ map[string]interface{}) (interface{}, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("operator.neg: requires 1 argument")
		}
		a, err := num(args[0])
		if err != nil {
			return nil, err
		}
		return -a, nil
	})
}

// RegisterExprModule exposes expr-lang/expr (already wired as pkg/expression)
// as the host function a flow uses to compute branch()'s boolean condition
// or any other derived value, replacing the source's ad hoc Python
// condition strings evaluated inline.
func RegisterExprModule(r *Registry) {
	r.Register("expr.eval", func(_ context.Context, _ string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("expr.eval: requires an expression string argument")
		}
		exprStr, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("expr.eval: expression must be a string")
		}
		var input interface{}
		if len(args) > 1 {
			input = args[1]
		}
		ctx := &expression.Context{
			Variables: kwargs,
		}
		return expression.EvaluateExpression(exprStr, input, ctx)
	})
	r.Register("expr.test", func(_ context.Context, _ string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("expr.test: requires an expression string argument")
		}
		exprStr, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("expr.test: expression must be a string")
		}
		var input interface{}
		if len(args) > 1 {
			input = args[1]
		}
		ctx := &expression.Context{
			Variables: kwargs,
		}
		return expression.Evaluate(exprStr, input, ctx)
	})
}

// RegisterHTTPModule wires pkg/httpclient's SSRF-guarded transport as the
// "http" module, replacing the source's bare `requests.get`/`requests.post`
// (app/utils/func_utils.py's own docstring example is "requests.get").
func RegisterHTTPModule(r *Registry, clients *httpclient.Registry) {
	call := func(method string) Func {
		return func(ctx context.Context, nodeID string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
			if len(args) < 1 {
				return nil, fmt.Errorf("http.%s: requires a url argument", strings.ToLower(method))
			}
			url, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("http.%s: url must be a string", strings.ToLower(method))
			}
			clientName, _ := kwargs["client"].(string)
			httpClient, _, err := clients.GetHTTPClient(clientName)
			if err != nil {
				return nil, err
			}
			ctx = httpclient.WithNodeID(ctx, nodeID)
			req, err := http.NewRequestWithContext(ctx, method, url, nil)
			if err != nil {
				return nil, err
			}
			if headers, ok := kwargs["headers"].(map[string]interface{}); ok {
				for k, v := range headers {
					req.Header.Set(k, fmt.Sprintf("%v", v))
				}
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
	r.Register("http.get", call(http.MethodGet))
	r.Register("http.post", call(http.MethodPost))
	r.Register("http.put", call(http.MethodPut))
	r.Register("http.delete", call(http.MethodDelete))
}
