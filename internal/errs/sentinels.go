// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/workflow/upstream layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	// For admin binding lookups callers must treat it as "deny".
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed user input (login/code); the caller
	// re-prompts and leaves the conversation state unchanged.
	ErrValidation = errors.New("validation failed")

	// ErrAuthFailed indicates rejected credentials or refresh token at the
	// upstream token endpoints (HTTP 400/401).
	ErrAuthFailed = errors.New("upstream auth failed")

	// ErrUpstream indicates a non-2xx answer from the inference API outside
	// the auth cases above.
	ErrUpstream = errors.New("upstream error")
)
