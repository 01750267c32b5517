package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when no transition is configured for an action
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrGuardFailed is returned when no branch condition holds for an action
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrInvalidStage is returned when a stage number is outside 1..21
	ErrInvalidStage = errors.New("invalid stage")

	// ErrValidation marks guard failures and invalid input
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing indent, purchase order or row
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a row that changed between read and write; retryable
	ErrConflict = errors.New("concurrency conflict")

	// ErrUpstream marks a failed store adapter or collaborator call
	ErrUpstream = errors.New("upstream failure")

	// ErrForbidden marks an actor whose role may not act on the current stage
	ErrForbidden = errors.New("forbidden")
)

// Kind classifies an Error
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
	KindForbidden  Kind = "forbidden"
)

var kindSentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindNotFound:   ErrNotFound,
	KindConflict:   ErrConflict,
	KindUpstream:   ErrUpstream,
	KindForbidden:  ErrForbidden,
}

// Error carries a taxonomy kind and a human-readable reason.
// It matches its kind's sentinel with errors.Is and unwraps to the cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Validation creates a guard/input failure
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

// NotFound creates a missing-entity failure
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

// Conflict wraps a row conflict
func Conflict(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Upstream wraps a store or collaborator failure
func Upstream(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUpstream, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Forbidden creates an authorization failure
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the taxonomy kind of err, or "" when err is not classified
func KindOf(err error) Kind {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may retry after re-reading state
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ReasonOf returns the human-readable reason of a classified error
func ReasonOf(err error) string {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
