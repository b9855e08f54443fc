package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/config"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/security"
)

// nodeIDContextKey carries the id of the flow node whose "http.*" call
// issued a request, set by the registry's http module (see
// pkg/registry.RegisterHTTPModule) and read back here so an SSRF block can
// be attributed to the node that triggered it.
type nodeIDContextKey struct{}

// WithNodeID returns a copy of ctx carrying the calling flow node's id.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDContextKey{}, nodeID)
}

// nodeIDFromContext returns the node id stored by WithNodeID, or "" if
// none was set (e.g. a request built outside the registry's http module).
func nodeIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(nodeIDContextKey{}).(string)
	return id
}

// Client wraps an HTTP client with its configuration
type Client struct {
	*http.Client
	config *ClientConfig
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// GetHTTPClient returns the underlying *http.Client.
func (c *Client) GetHTTPClient() *http.Client {
	return c.Client
}

// Builder creates configured HTTP clients
type Builder struct {
	engineConfig *config.Config // Interpreter config for security settings
}

// NewBuilder creates a new HTTP client builder
func NewBuilder(engineConfig *config.Config) *Builder {
	return &Builder{
		engineConfig: engineConfig,
	}
}

// Build creates an HTTP client from the given configuration
func (b *Builder) Build(config *ClientConfig) (*Client, error) {
	// Apply defaults
	config.ApplyDefaults()

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	// Create transport with connection pooling
	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		DisableKeepAlives:   config.DisableKeepAlives,
	}

	// Create base HTTP client. ssrfTransport validates the initial request
	// (not just redirects) so an "http.get" node can't reach a blocked
	// target on its first hop.
	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &authTransport{
			base: &ssrfTransport{
				base:    transport,
				builder: b,
			},
			config: config,
		},
	}

	// Configure redirect behavior
	if !config.FollowRedirects {
		httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else {
		httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("too many redirects (max %d)", config.MaxRedirects)
			}
			// Validate redirect URL for SSRF protection, attributing the
			// block to the flow node that issued the original request.
			nodeID := nodeIDFromContext(req.Context())
			if err := b.validateURLForNode(nodeID, req.URL.String()); err != nil {
				return fmt.Errorf("redirect URL validation failed: %w", err)
			}
			return nil
		}
	}

	return &Client{
		Client: httpClient,
		config: config,
	}, nil
}

// validateURLForNode validates url against this workflow engine's SSRF
// policy, attributing a block to nodeID (the flow node whose "http.*" call
// issued the request, set via WithNodeID; "" if the caller didn't set one).
func (b *Builder) validateURLForNode(nodeID, url string) error {
	// Build SSRF protection config from workflow engine config; plain http
	// is only permitted when the engine config allows it.
	schemes := []string{"https"}
	if b.engineConfig.AllowHTTP {
		schemes = append(schemes, "http")
	}
	ssrfConfig := security.SSRFConfig{
		AllowedSchemes:     schemes,
		BlockPrivateIPs:    !b.engineConfig.AllowPrivateIPs,
		BlockLocalhost:     !b.engineConfig.AllowLocalhost,
		BlockLinkLocal:     !b.engineConfig.AllowLinkLocal,
		BlockCloudMetadata: !b.engineConfig.AllowCloudMetadata,
		AllowedDomains:     b.engineConfig.AllowedDomains,
		BlockedDomains:     []string{},
	}

	protection := security.NewSSRFProtectionWithConfig(ssrfConfig)
	return protection.ValidateURLForNode(nodeID, url)
}

// ssrfTransport validates a request's URL against the builder's SSRF
// policy before handing it to base, so the policy applies to the initial
// request and not only to CheckRedirect's follow-up hops.
type ssrfTransport struct {
	base    http.RoundTripper
	builder *Builder
}

func (t *ssrfTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	nodeID := nodeIDFromContext(req.Context())
	if err := t.builder.validateURLForNode(nodeID, req.URL.String()); err != nil {
		return nil, fmt.Errorf("request URL validation failed: %w", err)
	}
	return t.base.RoundTrip(req)
}

// authTransport is an http.RoundTripper that adds authentication headers
type authTransport struct {
	base   http.RoundTripper
	config *ClientConfig
}

// RoundTrip implements http.RoundTripper interface
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())

	// Add authentication headers
	switch t.config.AuthType {
	case AuthTypeBasic:
		clonedReq.SetBasicAuth(t.config.Username, t.config.Password)
	case AuthTypeBearer:
		clonedReq.Header.Set("Authorization", "Bearer "+t.config.Token)
	}

	// Add default headers
	for key, value := range t.config.DefaultHeaders {
		// Don't override headers that are already set
		if clonedReq.Header.Get(key) == "" {
			clonedReq.Header.Set(key, value)
		}
	}

	// Add default query parameters
	if len(t.config.DefaultQueryParams) > 0 {
		q := clonedReq.URL.Query()
		for key, value := range t.config.DefaultQueryParams {
			// Don't override query params that are already set
			if !q.Has(key) {
				q.Set(key, value)
			}
		}
		clonedReq.URL.RawQuery = q.Encode()
	}

	// Execute the request
	return t.base.RoundTrip(clonedReq)
}
