package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrNilParam indicates a required parameter was nil.
	ErrNilParam = errors.New("store: required parameter is nil")

	// ErrUnknownInstance indicates a checkpoint references an unregistered instance.
	ErrUnknownInstance = errors.New("store: unknown instance")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store: closed")
)
