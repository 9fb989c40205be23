package sources

import "errors"

// Errors returned by registry operations.
var (
	// ErrNotFound indicates an unknown source ID.
	ErrNotFound = errors.New("sources: source not found")

	// ErrInvalidState indicates the operation is illegal for the source's
	// current status, e.g. unlocking an already-unlocked source.
	ErrInvalidState = errors.New("sources: operation not valid for current source status")

	// ErrAuthenticationFailed indicates a bad master password.
	ErrAuthenticationFailed = errors.New("sources: authentication failed")

	// ErrRemoteUnavailable indicates the backing store could not be reached
	// or read during unlock, save or reload.
	ErrRemoteUnavailable = errors.New("sources: backing store unavailable")

	// ErrMalformedContent indicates an entry or property could not be
	// interpreted during cache recompute.
	ErrMalformedContent = errors.New("sources: malformed entry content")
)
