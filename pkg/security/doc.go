// Package security implements SSRF protection for the "http" module's
// outbound requests: scheme/domain allow- and block-lists, and blocking
// requests that resolve to loopback, private, link-local, or cloud
// metadata addresses.
//
// SSRFProtection is built from the engine's pkg/config settings
// (AllowPrivateIPs, AllowLocalhost, AllowLinkLocal, AllowCloudMetadata,
// AllowedDomains) by pkg/httpclient.Builder, and checked on every outbound
// request and redirect an "http.get"/"http.post"/etc. node issues.
// ValidateURLForNode folds the originating flow node's id into a block's
// error so a run with several "http" nodes attributes a block to the one
// that triggered it rather than a bare URL.
//
//	protection := security.NewSSRFProtectionWithConfig(security.SSRFConfig{
//		BlockPrivateIPs:    true,
//		BlockCloudMetadata: true,
//	})
//	if err := protection.ValidateURLForNode(nodeID, url); err != nil {
//		return fmt.Errorf("http call blocked: %w", err)
//	}
package security
