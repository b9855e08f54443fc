package security

import "errors"

// Sentinel errors an http.* node call's SSRF validation wraps via %w (see
// SSRFProtection.ValidateURL/ValidateURLForNode), so a caller up in
// pkg/httpclient or pkg/interpreter can discriminate the block reason with
// errors.Is instead of matching on the formatted message.
var (
	ErrURLNotAllowed    = errors.New("URL not allowed by security policy")
	ErrPrivateIPBlocked = errors.New("access to private IP blocked")
	ErrLocalhostBlocked = errors.New("access to localhost blocked")
	ErrLinkLocalBlocked = errors.New("access to link-local address blocked")
	ErrMetadataBlocked  = errors.New("access to cloud metadata blocked")
	ErrInvalidProtocol  = errors.New("invalid or disallowed protocol")
)
