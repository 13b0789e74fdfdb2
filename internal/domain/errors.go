package domain

import "errors"

var (
	// ErrConnectionNotFound is returned by mutations targeting a connection
	// that was never registered.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectionRevoked is returned by mutations targeting a connection
	// that has already reached its terminal state.
	ErrConnectionRevoked = errors.New("connection is revoked")
)
