package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so transport handlers can map it to a status code
// without inspecting message text.
type Kind int

const (
	// KindValidation marks user-correctable payload, math or policy violations.
	KindValidation Kind = iota
	// KindPermissionDenied marks membership or ownership check failures.
	KindPermissionDenied
	// KindNotFound marks a referenced group, category, member or item that
	// does not exist.
	KindNotFound
	// KindConflict marks a reference to an entity that exists but belongs to
	// someone else, e.g. an item id outside the expense being updated.
	KindConflict
)

// Error is a classified error with an optional offending field or key.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a user-correctable validation error.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

// Validationf builds a validation error with a formatted message.
func Validationf(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ValidationWrap classifies an underlying error as a validation failure,
// keeping it reachable through errors.Is/As.
func ValidationWrap(field string, err error) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: err.Error(), Err: err}
}

// PermissionDenied builds a membership/ownership failure.
func PermissionDenied(msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Msg: msg}
}

// NotFound builds a missing-reference failure.
func NotFound(field, msg string) *Error {
	return &Error{Kind: KindNotFound, Field: field, Msg: msg}
}

// Conflict builds a foreign-reference failure.
func Conflict(field, msg string) *Error {
	return &Error{Kind: KindConflict, Field: field, Msg: msg}
}

// KindOf extracts the kind of err; ok is false for unclassified errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is classified with the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
