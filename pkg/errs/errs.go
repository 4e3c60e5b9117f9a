// Package errs defines the error kinds surfaced by the vektor engine.
//
// Every failure returned by the storage, graph and engine layers can be
// classified with errors.Is against one of the kind sentinels below:
//
//	if errors.Is(err, errs.ErrDuplicateKey) {
//	    // the id is already live
//	}
package errs

import (
	"errors"
	"fmt"
)

// Kinds of failure.
var (
	// ErrValidation marks malformed input (dimension mismatch, bad id, bad k).
	ErrValidation = errors.New("validation error")
	// ErrDuplicateKey marks an insert of an id that is already live.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound marks a lookup of an absent or tombstoned id.
	ErrNotFound = errors.New("not found")
	// ErrCorruption marks on-disk data that cannot be interpreted.
	// No automatic repair is attempted.
	ErrCorruption = errors.New("data corruption")
	// ErrLock marks a lock file that could not be opened or acquired.
	ErrLock = errors.New("lock error")
)

// Error wraps an underlying error with the operation that failed and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("vektor.%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("vektor.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against the error kind so callers never have to
// unwrap down to the storage-level cause.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Wrap attaches an operation and kind to err. It returns nil for a nil err.
func Wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Validation builds an ErrValidation error with a formatted message.
func Validation(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}

// Corruption builds an ErrCorruption error with a formatted message.
func Corruption(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrCorruption, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind sentinel err belongs to, or nil if it is unclassified.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrDuplicateKey, ErrNotFound, ErrCorruption, ErrLock} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
