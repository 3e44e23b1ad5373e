package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeOpen indicates the store could not be loaded.
	ErrCodeOpen ErrorCode = "STORE_OPEN"

	// ErrCodeWrite indicates new entries could not be persisted.
	ErrCodeWrite ErrorCode = "STORE_WRITE"
)

var (
	// ErrReadOnly is returned when registering into a read-only store.
	ErrReadOnly = errors.New("store is read-only")

	// ErrEmptyName is returned when registering an empty symbol name.
	ErrEmptyName = errors.New("empty symbol name")

	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrModified is returned by Commit when the file changed after it was
	// loaded, which means another process wrote to it concurrently.
	ErrModified = errors.New("store file was modified by another writer")

	// ErrDuplicate is wrapped by load errors for files that map one name to
	// two identities or one identity to two names.
	ErrDuplicate = errors.New("duplicate entry")
)

// Error is a store open or write failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Path is the store file.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeOpen:
		return fmt.Sprintf("cannot open symbol store %s: %v", e.Path, e.Err)
	case ErrCodeWrite:
		return fmt.Sprintf("cannot write symbol store %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsOpenError reports whether err is a store open failure.
// Uses errors.As to handle wrapped errors.
func IsOpenError(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == ErrCodeOpen
	}
	return false
}

// IsWriteError reports whether err is a store write failure.
// Uses errors.As to handle wrapped errors.
func IsWriteError(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == ErrCodeWrite
	}
	return false
}

func openError(path string, err error) *Error {
	return &Error{Code: ErrCodeOpen, Path: path, Err: err}
}

func writeError(path string, err error) *Error {
	return &Error{Code: ErrCodeWrite, Path: path, Err: err}
}
