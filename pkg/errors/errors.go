package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code, so sentinel comparisons via errors.Is keep
// working on the copies produced by WithInternal.
func (e *AppError) Is(target error) bool {
	if e == nil {
		return false
	}

	appErr, ok := target.(*AppError)
	if !ok || appErr == nil {
		return false
	}
	return e.Code == appErr.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	// ErrUserNotFound signals that an identifier did not resolve in the user directory.
	ErrUserNotFound = &AppError{
		Code:       "directory.user_not_found",
		Message:    "User not found",
		StatusCode: http.StatusNotFound,
	}

	// ErrReplayAttack signals that a previously consumed one-time code was
	// resubmitted on a persisting verification. Callers must not collapse this
	// into a generic invalid-code response when logging or alerting.
	ErrReplayAttack = &AppError{
		Code:       "mfa.replay_attack",
		Message:    "The code has already been used",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrInvalidState marks a defensive invariant violation, e.g. a provisioning
	// URI requested for a secret whose owning user vanished concurrently.
	ErrInvalidState = &AppError{
		Code:       "mfa.invalid_state",
		Message:    "Inconsistent second-factor state",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrCodeInvalid is the generic signal for a failed verification. It does
	// not distinguish "no secret provisioned" from "wrong code" so that
	// unauthenticated callers cannot enumerate accounts.
	ErrCodeInvalid = &AppError{
		Code:       "mfa.code_invalid",
		Message:    "Incorrect verification code",
		StatusCode: http.StatusUnauthorized,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
