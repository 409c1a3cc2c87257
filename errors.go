package lsm

import (
	"errors"
	"fmt"
)

// Error represents an lsm error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lsm: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("lsm: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode represents engine result codes
type ErrorCode int

// Error codes - the engine's closed result enumeration, plus the local
// not-found sentinel
const (
	// Success indicates the operation completed successfully
	Success ErrorCode = 0

	// ErrNotFound indicates a missing key or a failed exact seek. This is
	// not an engine result code; the engine reports absence through cursor
	// validity, and the wrapper produces this sentinel locally.
	ErrNotFound ErrorCode = -1

	// ErrError indicates a generic engine failure
	ErrError ErrorCode = 1

	// ErrBusy indicates the database is locked by another connection
	ErrBusy ErrorCode = 5

	// ErrNoMem indicates an allocation failed inside the engine
	ErrNoMem ErrorCode = 7

	// ErrReadOnly indicates a write was attempted on a read-only connection
	ErrReadOnly ErrorCode = 8

	// ErrIO indicates a disk read or write failed
	ErrIO ErrorCode = 10

	// ErrCorrupt indicates the database file is malformed
	ErrCorrupt ErrorCode = 11

	// ErrFull indicates the database cannot grow further
	ErrFull ErrorCode = 13

	// ErrCantOpen indicates the database file could not be opened
	ErrCantOpen ErrorCode = 14

	// ErrProtocol indicates a locking protocol violation between connections
	ErrProtocol ErrorCode = 15

	// ErrMisuse indicates the library was used in an illegal state: a closed
	// connection or cursor, repositioning mid-iteration, stepping after an
	// exact seek, a stale transaction handle
	ErrMisuse ErrorCode = 21

	// ErrMismatch indicates a payload of the wrong shape for the
	// connection's mode (invalid UTF-8 in text mode, oversized key or value)
	ErrMismatch ErrorCode = 50
)

// Error descriptions
var errorMessages = map[ErrorCode]string{
	Success:     "success",
	ErrNotFound: "key not found",
	ErrError:    "engine error",
	ErrBusy:     "database is locked",
	ErrNoMem:    "out of memory",
	ErrReadOnly: "connection is read-only",
	ErrIO:       "disk I/O error",
	ErrCorrupt:  "database is corrupted",
	ErrFull:     "database is full",
	ErrCantOpen: "unable to open database file",
	ErrProtocol: "locking protocol violation",
	ErrMisuse:   "library used in an illegal state",
	ErrMismatch: "value does not match connection mode",
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// NewErrorf creates a new Error with the given code and a formatted message
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// NotFound is a sentinel error for "key not found".
// Use IsNotFound() to check for this error.
var NotFound = NewError(ErrNotFound)

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrNotFound
	}
	return false
}

// IsBusy returns true if the error is ErrBusy
func IsBusy(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrBusy
	}
	return false
}

// IsMisuse returns true if the error is ErrMisuse
func IsMisuse(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrMisuse
	}
	return false
}

// IsReadOnly returns true if the error is ErrReadOnly
func IsReadOnly(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrReadOnly
	}
	return false
}

// IsCorrupted returns true if the error indicates database corruption
func IsCorrupted(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCorrupt || e.Code == ErrProtocol
	}
	return false
}

// IsMismatch returns true if the error is ErrMismatch
func IsMismatch(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrMismatch
	}
	return false
}

// Code returns the error code from an error, or ErrError if not an lsm error
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrError
}
