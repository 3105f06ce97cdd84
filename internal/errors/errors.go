// Package errors defines the coded application errors shared by the access gateway's
// services, stores and HTTP boundary.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the category carried by an AppError. The HTTP layer maps codes to status codes.
type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "not_found"
	ErrCodeConflict           ErrorCode = "conflict"
	ErrCodeValidation         ErrorCode = "validation"
	ErrCodeForeignKey         ErrorCode = "foreign_key"
	ErrCodeInternal           ErrorCode = "internal"
	ErrCodeTimeout            ErrorCode = "timeout"
	ErrCodeCanceled           ErrorCode = "canceled"
	ErrCodeUnauthenticated    ErrorCode = "unauthenticated"
	ErrCodeUnauthorized       ErrorCode = "unauthorized"
	ErrCodeProfileUnavailable ErrorCode = "profile_unavailable"
	// ErrCodeStaleResolution marks a profile resolution superseded by a newer identity.
	ErrCodeStaleResolution    ErrorCode = "stale_resolution"
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	ErrCodeTooManyRequests    ErrorCode = "too_many_requests"
	ErrCodeUserDisabled       ErrorCode = "user_disabled"
)

// AppError is a coded error with an optional cause and offending field.
// It unwraps to Cause so errors.Is and errors.As see through it.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the input that failed validation or conflicted, when known.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func newError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFound reports a missing resource.
func NotFound(message string) *AppError { return newError(ErrCodeNotFound, message) }

// NotFoundf is NotFound with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict reports a uniqueness clash with existing data.
func Conflict(message string) *AppError { return newError(ErrCodeConflict, message) }

// Conflictf is Conflict with a formatted message.
func Conflictf(format string, args ...any) *AppError {
	return newError(ErrCodeConflict, fmt.Sprintf(format, args...))
}

// Validation reports invalid input.
func Validation(message string) *AppError { return newError(ErrCodeValidation, message) }

// ValidationField reports invalid input for a named field.
func ValidationField(field, message string) *AppError {
	e := newError(ErrCodeValidation, message)
	e.Field = field
	return e
}

// Internal reports an unexpected failure whose details must not reach the caller.
func Internal(message string) *AppError { return newError(ErrCodeInternal, message) }

// Unauthenticated reports a request without a signed-in principal.
func Unauthenticated(message string) *AppError { return newError(ErrCodeUnauthenticated, message) }

// Unauthorized reports a principal whose role does not permit the operation.
func Unauthorized(message string) *AppError { return newError(ErrCodeUnauthorized, message) }

// Unauthorizedf is Unauthorized with a formatted message.
func Unauthorizedf(format string, args ...any) *AppError {
	return newError(ErrCodeUnauthorized, fmt.Sprintf(format, args...))
}

// ProfileUnavailable wraps a failed profile read or create.
func ProfileUnavailable(cause error) *AppError {
	return &AppError{Code: ErrCodeProfileUnavailable, Message: "profile unavailable", Cause: cause}
}

// StaleResolution reports a resolution for a superseded generation.
func StaleResolution(generation, current uint64) *AppError {
	return newError(ErrCodeStaleResolution,
		fmt.Sprintf("stale resolution: generation %d superseded by %d", generation, current))
}

// InvalidCredentials reports a rejected sign-in.
func InvalidCredentials(message string) *AppError {
	return newError(ErrCodeInvalidCredentials, message)
}

// UserDisabled reports a sign-in for a disabled account.
func UserDisabled(message string) *AppError { return newError(ErrCodeUserDisabled, message) }

// TooManyRequests reports a throttled caller.
func TooManyRequests(message string) *AppError { return newError(ErrCodeTooManyRequests, message) }

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool           { return HasCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool           { return HasCode(err, ErrCodeConflict) }
func IsValidation(err error) bool         { return HasCode(err, ErrCodeValidation) }
func IsTimeout(err error) bool            { return HasCode(err, ErrCodeTimeout) }
func IsCanceled(err error) bool           { return HasCode(err, ErrCodeCanceled) }
func IsUnauthorized(err error) bool       { return HasCode(err, ErrCodeUnauthorized) }
func IsProfileUnavailable(err error) bool { return HasCode(err, ErrCodeProfileUnavailable) }
func IsStaleResolution(err error) bool    { return HasCode(err, ErrCodeStaleResolution) }
func IsInvalidCredentials(err error) bool { return HasCode(err, ErrCodeInvalidCredentials) }
func IsUserDisabled(err error) bool       { return HasCode(err, ErrCodeUserDisabled) }
func IsTooManyRequests(err error) bool    { return HasCode(err, ErrCodeTooManyRequests) }

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of the outermost AppError in err's chain, or "".
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
