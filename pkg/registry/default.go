package registry

import "github.com/yesoreyeram/thaiyyal/backend/pkg/httpclient"

// NewDefault builds a Registry pre-populated with every built-in host
// module SPEC_FULL.md's domain stack names: operator, expr, and http. Pass
// a non-nil clients registry to make named HTTP clients (pkg/httpclient.ClientConfig
// entries) resolvable by the "http" module's "client" kwarg; nil gets an
// empty registry, so every http.* call fails with a client-not-found error.
func NewDefault(clients *httpclient.Registry) *Registry {
	if clients == nil {
		clients = httpclient.NewRegistry()
	}
	r := New("")
	RegisterOperatorModule(r)
	RegisterExprModule(r)
	RegisterHTTPModule(r, clients)
	return r
}
