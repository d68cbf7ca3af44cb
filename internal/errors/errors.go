package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable reason code attached to every classified failure.
// Presentation code switches on it instead of inspecting provider errors.
type ErrorCode string

const (
	// ErrCodeInvalidCredentials indicates the identity provider rejected the e-mail/password pair.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodeAccountMissing indicates the provider authenticated a user that has no profile document.
	ErrCodeAccountMissing ErrorCode = "account_missing"
	// ErrCodeBanned indicates the profile is flagged as banned.
	ErrCodeBanned ErrorCode = "banned"
	// ErrCodeServiceUnavailable indicates a transport or backend failure of an external service.
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
	// ErrCodeAlreadyExists indicates an account or document with the same key exists.
	ErrCodeAlreadyExists ErrorCode = "already_exists"
	// ErrCodeNotAuthenticated indicates the operation needs an active session.
	ErrCodeNotAuthenticated ErrorCode = "not_authenticated"
	// ErrCodePermissionDenied indicates the active user lacks the required role.
	ErrCodePermissionDenied ErrorCode = "permission_denied"
	// ErrCodeTooManyAttempts indicates login attempts are being throttled.
	ErrCodeTooManyAttempts ErrorCode = "too_many_attempts"
	// ErrCodeBusy indicates another login/logout is in flight and concurrent calls are rejected.
	ErrCodeBusy ErrorCode = "busy"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnsupported indicates the configured provider cannot perform the operation.
	ErrCodeUnsupported ErrorCode = "unsupported"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// InvalidCredentials creates a new InvalidCredentials error.
func InvalidCredentials(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidCredentials,
		Message: "email or password is incorrect",
		Cause:   cause,
	}
}

// AccountMissing creates a new AccountMissing error for the given e-mail.
func AccountMissing(email string) *AppError {
	return &AppError{
		Code:    ErrCodeAccountMissing,
		Message: fmt.Sprintf("no profile exists for %s", email),
	}
}

// Banned creates a new Banned error for the given e-mail.
func Banned(email string) *AppError {
	return &AppError{
		Code:    ErrCodeBanned,
		Message: fmt.Sprintf("account %s is banned; contact an administrator", email),
	}
}

// ServiceUnavailable wraps a transport or backend failure.
func ServiceUnavailable(cause error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeServiceUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// AlreadyExists creates a new AlreadyExists error.
func AlreadyExists(message string) *AppError {
	return &AppError{
		Code:    ErrCodeAlreadyExists,
		Message: message,
	}
}

// AlreadyExistsf creates a new AlreadyExists error with formatted message.
func AlreadyExistsf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeAlreadyExists,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotAuthenticated creates a new NotAuthenticated error.
func NotAuthenticated(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotAuthenticated,
		Message: message,
	}
}

// PermissionDenied creates a new PermissionDenied error.
func PermissionDenied(message string) *AppError {
	return &AppError{
		Code:    ErrCodePermissionDenied,
		Message: message,
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsInvalidCredentials checks if an error is an InvalidCredentials error.
func IsInvalidCredentials(err error) bool {
	return isCode(err, ErrCodeInvalidCredentials)
}

// IsAccountMissing checks if an error is an AccountMissing error.
func IsAccountMissing(err error) bool {
	return isCode(err, ErrCodeAccountMissing)
}

// IsBanned checks if an error is a Banned error.
func IsBanned(err error) bool {
	return isCode(err, ErrCodeBanned)
}

// IsServiceUnavailable checks if an error is a ServiceUnavailable error.
func IsServiceUnavailable(err error) bool {
	return isCode(err, ErrCodeServiceUnavailable)
}

// IsAlreadyExists checks if an error is an AlreadyExists error.
func IsAlreadyExists(err error) bool {
	return isCode(err, ErrCodeAlreadyExists)
}

// IsNotAuthenticated checks if an error is a NotAuthenticated error.
func IsNotAuthenticated(err error) bool {
	return isCode(err, ErrCodeNotAuthenticated)
}

// IsPermissionDenied checks if an error is a PermissionDenied error.
func IsPermissionDenied(err error) bool {
	return isCode(err, ErrCodePermissionDenied)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
