// Package errors holds the error classes shared across tidings packages.
// Package level sentinels wrap one of these so callers can match either.
package errors

import "errors"

var (
	// ErrTimeout marks an operation that ran out of time.
	ErrTimeout = errors.New("timeout")
	// ErrConnectionClosed marks a backend connection that went away.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrClosed marks use of a component after Close.
	ErrClosed = errors.New("closed")
)
