package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidArgument indicates a caller supplied an empty or malformed key.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)
