package persistence

import "errors"

var (
	// ErrNotFound indicates that the requested row does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate indicates a unique constraint rejected the write.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrForeignKey indicates a referenced row does not exist.
	ErrForeignKey = errors.New("persistence: missing reference")
	// ErrReadOnly is returned when a write is attempted inside ReadOnly.
	ErrReadOnly = errors.New("persistence: read-only transaction")
)
