package domain

import "errors"

// Kind classifies a domain failure. The transport layer maps kinds to status codes.
type Kind string

const (
	KindAuthentication    Kind = "unauthenticated"
	KindAuthorization     Kind = "forbidden"
	KindValidation        Kind = "validation_failed"
	KindFormat            Kind = "invalid_format"
	KindFiscalYearLocked  Kind = "fiscal_year_locked"
	KindMonthNotConcluded Kind = "month_not_concluded"
	KindNotFound          Kind = "not_found"
	KindLockConflict      Kind = "lock_conflict"
	KindConfigMissing     Kind = "config_missing"
	KindStore             Kind = "store_error"
)

// Error is a domain failure carrying its kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

var (
	ErrUnauthenticated   = &Error{Kind: KindAuthentication, Message: "authentication required"}
	ErrForbidden         = &Error{Kind: KindAuthorization, Message: "not authorized for this record"}
	ErrValidation        = &Error{Kind: KindValidation, Message: "invalid submission"}
	ErrFormat            = &Error{Kind: KindFormat, Message: "invalid date format"}
	ErrFiscalYearLocked  = &Error{Kind: KindFiscalYearLocked, Message: "fiscal year is locked"}
	ErrMonthNotConcluded = &Error{Kind: KindMonthNotConcluded, Message: "month has not concluded"}
	ErrRecordNotFound    = &Error{Kind: KindNotFound, Message: "record not found"}
	ErrLockConflict      = &Error{Kind: KindLockConflict, Message: "record lock state conflict"}
	ErrConfigMissing     = &Error{Kind: KindConfigMissing, Message: "activity configuration missing"}
	ErrStore             = &Error{Kind: KindStore, Message: "store failure"}
)

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of err. Errors that are not domain errors are store failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStore
}
