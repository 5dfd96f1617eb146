package sshfront

import "errors"

// Error kinds per spec.md §7, independent of any particular type
// vocabulary. Each maps to a specific fail-closed response on the wire.
var (
	// ErrAuthFailure: no public key matched, or the signature was invalid.
	ErrAuthFailure = errors.New("sshfront: authentication failure")
	// ErrUnknownOrganization: the upload-pack argument names an
	// organization the user cannot see (or that doesn't exist).
	ErrUnknownOrganization = errors.New("sshfront: unknown organization")
	// ErrInvalidPath: the builder was asked to descend through a blob.
	// Internal bug — not recoverable mid-fetch.
	ErrInvalidPath = errors.New("sshfront: invalid path")
	// ErrDatabaseError wraps any failure from the persistence layer.
	ErrDatabaseError = errors.New("sshfront: database error")
	// ErrProtocolError: malformed pkt-line, unexpected command, or a
	// truncated want list.
	ErrProtocolError = errors.New("sshfront: protocol error")
	// ErrOversizeIndex: a user's view exceeded the configured byte budget.
	ErrOversizeIndex = errors.New("sshfront: index exceeds configured size budget")
)
