package auth

import "errors"

// Error taxonomy for the auth core. Handlers map these to HTTP status
// codes and stable error codes; nothing else leaks to clients.
var (
	// ErrInvalidCredentials covers unknown email, inactive account and
	// password mismatch alike so responses cannot be used to enumerate
	// registered addresses.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrWeakPassword = errors.New("auth: password does not meet policy")
	ErrEmailTaken   = errors.New("auth: email already registered")

	ErrExpired      = errors.New("auth: token expired")
	ErrBadSignature = errors.New("auth: token signature invalid")
	ErrMalformed    = errors.New("auth: token malformed")
	ErrRevoked      = errors.New("auth: token revoked")

	ErrRateLimited = errors.New("auth: rate limited")
	ErrForbidden   = errors.New("auth: forbidden")
	ErrNotFound    = errors.New("auth: not found")

	// ErrStoreUnavailable reports that a backing store could not be
	// reached. It is mapped per the configured fail-open/fail-closed
	// policy and never surfaced verbatim.
	ErrStoreUnavailable = errors.New("auth: store unavailable")

	// ErrCorruptCredential reports a stored password digest that can
	// no longer be parsed.
	ErrCorruptCredential = errors.New("auth: corrupt credential digest")
)
