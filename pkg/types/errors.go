package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an orchestrator error for callers
type ErrorKind string

const (
	// Validation errors - surfaced to the caller, never retried
	KindInvalidBrief     ErrorKind = "InvalidBrief"
	KindInvalidPath      ErrorKind = "InvalidPath"
	KindInvalidParameter ErrorKind = "InvalidParameter"

	// Not-found errors
	KindNotFound         ErrorKind = "NotFound"
	KindWorkspaceMissing ErrorKind = "WorkspaceMissing"

	// State-conflict errors
	KindSlotBusy         ErrorKind = "SlotBusy"
	KindNotCancellable   ErrorKind = "NotCancellable"
	KindAlreadyCancelled ErrorKind = "AlreadyCancelled"
	KindAlreadyExists    ErrorKind = "AlreadyExists"

	// Capacity errors
	KindNoSlot           ErrorKind = "NoSlot"
	KindCapacityExceeded ErrorKind = "CapacityExceeded"

	// Resource errors
	KindFileTooLarge ErrorKind = "FileTooLarge"
	KindIoFailure    ErrorKind = "IoFailure"
)

// Error is an orchestrator error carrying a kind alongside its message
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// E builds a classified error.
func E(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from err, or IoFailure for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIoFailure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
