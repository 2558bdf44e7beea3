package metadata

import (
	"errors"
	"fmt"
)

// StoreError represents a domain error from metadata store operations.
//
// These are namespace errors (entry not found, directory not empty, etc.)
// as opposed to infrastructure errors (disk failure, corrupted record).
//
// The mount layer translates StoreError codes to syscall.Errno values.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the entry name or path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested inode or entry doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates an entry with the name already exists
	ErrAlreadyExists

	// ErrNotEmpty indicates a directory is not empty (cannot be removed)
	ErrNotEmpty

	// ErrIsDirectory indicates operation expected a file but got a directory
	ErrIsDirectory

	// ErrNotDirectory indicates operation expected a directory but got a file
	ErrNotDirectory

	// ErrInvalidArgument indicates invalid parameters were provided
	// Examples: empty name, ".", "..", a name containing "/"
	ErrInvalidArgument

	// ErrIOError indicates the backing store failed
	ErrIOError

	// ErrNoSpace indicates the inode limit was reached
	ErrNoSpace

	// ErrStaleHandle indicates an inode vanished while it was referenced
	ErrStaleHandle
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotEmpty:
		return "not empty"
	case ErrIsDirectory:
		return "is a directory"
	case ErrNotDirectory:
		return "not a directory"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIOError:
		return "i/o error"
	case ErrNoSpace:
		return "no space"
	case ErrStaleHandle:
		return "stale handle"
	default:
		return fmt.Sprintf("error code %d", int(c))
	}
}

// NewError builds a *StoreError.
func NewError(code ErrorCode, message, path string) *StoreError {
	return &StoreError{Code: code, Message: message, Path: path}
}

// NewNotFoundError returns an ErrNotFound error for path.
func NewNotFoundError(path string) *StoreError {
	return NewError(ErrNotFound, "no such file or directory", path)
}

// NewIOError wraps an infrastructure failure into an ErrIOError.
func NewIOError(op string, err error) *StoreError {
	return NewError(ErrIOError, fmt.Sprintf("%s: %v", op, err), "")
}

// CodeOf returns the code of a *StoreError found in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
