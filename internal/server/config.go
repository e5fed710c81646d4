package server

import "errors"

// ErrUnauthorized is reported when the bearer token is missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AuthToken, when set, must be presented as a bearer token on writes.
	AuthToken string

	// AllowOrigins is the CORS allow list; "*" allows any origin.
	AllowOrigins []string

	// MaxContentLength caps request bodies in bytes.
	MaxContentLength int64

	// ForceHTTPS redirects requests that did not arrive over TLS, as
	// reported by X-Forwarded-Proto.
	ForceHTTPS bool
}
