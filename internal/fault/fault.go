// Package fault defines the caller-distinguishable error kinds used across
// the engine. Callers branch on kinds with errors.Is; the message carries
// the human-readable detail.
package fault

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification.
type Kind string

const (
	// Validation: input violates a contract. Not retryable.
	Validation Kind = "validation"
	// Conflict: constraint race (duplicate version_number, duplicate row).
	// Caller may retry with refreshed state.
	Conflict Kind = "conflict"
	// Forbidden: non-human attempting a human action, or cosign required.
	Forbidden Kind = "forbidden"
	// InvalidState: state-machine or timer violation.
	InvalidState Kind = "invalid_state"
	// InvalidVersion: version/blog mismatch.
	InvalidVersion Kind = "invalid_version"
	// ApprovedContent: the blog was approved after the job was queued.
	ApprovedContent Kind = "approved_content"
	// CapExceeded: rewrite cap hit.
	CapExceeded Kind = "cap_exceeded"
	// Timeout: external call exceeded its deadline.
	Timeout Kind = "timeout"
	// Unavailable: storage or external dependency down. Bubbled up as-is.
	Unavailable Kind = "unavailable"
	// Internal: invariant violation inside the core. Fatal for the operation.
	Internal Kind = "internal"
)

// Error carries a kind plus a message and optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, fault.New(fault.Conflict, ""))
// works; prefer the IsKind helper in new code.
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Kind == e.Kind
	}
	return false
}

// New builds an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or empty string for non-fault errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
