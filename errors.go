package sngraz

import "errors"

// Errors returned by the client. Callers match them with errors.Is; most are
// wrapped with additional context.
var (
	// ErrTransport is a connection-level failure that survived the retry budget.
	ErrTransport = errors.New("sngraz: transport error")
	// ErrTimeout means a single request exceeded its deadline. It is never retried.
	ErrTimeout = errors.New("sngraz: request timed out")
	// ErrProtocol is a well-formed HTTP exchange with a body that makes no sense for the call.
	ErrProtocol = errors.New("sngraz: protocol error")
	// ErrInvalidCredentials is returned when the login endpoint rejects the credentials.
	ErrInvalidCredentials = errors.New("sngraz: invalid credentials")
	// ErrAuthenticationFailed is returned when a freshly issued token is already invalid.
	ErrAuthenticationFailed = errors.New("sngraz: authentication failed")
	// ErrNotFound is returned by id lookups on installations and meters.
	ErrNotFound = errors.New("sngraz: not found")
)
