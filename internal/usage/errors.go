package usage

import "errors"

var (
	// ErrInvalidUserID means the id cannot be a Steam id. No request was made.
	ErrInvalidUserID = errors.New("invalid steam id")

	// ErrNotFound means the usage source does not know the user.
	ErrNotFound = errors.New("user not found")

	// ErrAccessDenied means the user exists but their library is private.
	ErrAccessDenied = errors.New("usage data is private")

	// ErrUpstreamUnavailable covers timeouts, server errors, throttling and an open circuit.
	// Callers may retry later.
	ErrUpstreamUnavailable = errors.New("usage source unavailable")
)
