package object

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes object errors.
type ErrorCode string

const (
	// ErrCodeRead indicates the object could not be parsed.
	ErrCodeRead ErrorCode = "OBJECT_READ"

	// ErrCodeWrite indicates the rewritten object could not be produced.
	ErrCodeWrite ErrorCode = "OBJECT_WRITE"
)

var (
	// ErrNoDynsym is returned for objects without a dynamic symbol table.
	ErrNoDynsym = errors.New("no dynamic symbol table")

	// ErrNoRoom is returned when the rebuilt string table neither fits in
	// place nor can be moved to a new segment.
	ErrNoRoom = errors.New("no room for rebuilt dynamic string table")

	// ErrMalformed is returned for structurally inconsistent objects.
	ErrMalformed = errors.New("malformed object")
)

// Error is an object read or write failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Path is the object file.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeRead:
		return fmt.Sprintf("cannot read object %s: %v", e.Path, e.Err)
	case ErrCodeWrite:
		return fmt.Sprintf("cannot write object %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsReadError reports whether err is an object read failure.
func IsReadError(err error) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code == ErrCodeRead
	}
	return false
}

// IsWriteError reports whether err is an object write failure.
func IsWriteError(err error) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code == ErrCodeWrite
	}
	return false
}

func readError(path string, err error) *Error {
	return &Error{Code: ErrCodeRead, Path: path, Err: err}
}

func writeError(path string, err error) *Error {
	return &Error{Code: ErrCodeWrite, Path: path, Err: err}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
