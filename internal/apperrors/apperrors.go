// Package apperrors defines the structured error kinds returned by the
// profile core. Every failure a caller can act on carries a Kind; Details
// holds kind-specific payload such as the list of missing fields.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for HTTP mapping.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindMissingFields      Kind = "MissingFieldsError"
	KindNotVerified        Kind = "NotVerifiedError"
	KindForbidden          Kind = "ForbiddenError"
	KindInvalidTransition  Kind = "InvalidTransitionError"
	KindIncompleteDocument Kind = "IncompleteDocumentsError"
	KindStorageFailure     Kind = "StorageFailure"
	KindNotFound           Kind = "NotFoundError"
	KindConflict           Kind = "ConflictError"
	KindInternal           Kind = "InternalError"
)

// Error is the structured error value. It serializes as
// {kind, message, details?}.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: err}
}

// WithDetails returns e with details attached.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Validation reports a rejected field value.
func Validation(field, reason string) *Error {
	return New(KindValidation, reason).WithDetails(map[string]string{"field": field})
}

// MissingFields reports required general info fields that are empty.
func MissingFields(fields []string) *Error {
	return New(KindMissingFields, "required fields are missing").WithDetails(fields)
}

// NotVerified reports a submit attempted before verification.
func NotVerified() *Error {
	return New(KindNotVerified, "profile must be verified before submission")
}

// Forbidden reports an operation the caller may not perform.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// InvalidTransition reports a no-op or disallowed status change.
func InvalidTransition(from, to string) *Error {
	return Newf(KindInvalidTransition, "cannot transition from %s to %s", from, to).
		WithDetails(map[string]string{"from": from, "to": to})
}

// IncompleteDocuments reports required document categories with no match.
func IncompleteDocuments(categories []string) *Error {
	return New(KindIncompleteDocument, "required documents are missing").WithDetails(categories)
}

// NotFound reports an id that does not resolve.
func NotFound(what string) *Error {
	return Newf(KindNotFound, "%s not found", what)
}
