package auth

import "errors"

// Missing and invalid keys map to UNAUTHENTICATED without confirming the key
// exists; revoked keys map to PERMISSION_DENIED; store failures to UNAVAILABLE.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrStore            = errors.New("key store unavailable")
)
