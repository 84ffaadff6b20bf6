package common

import (
	"errors"
	"net/http"
)

// AppError carries an error code and HTTP status alongside the cause.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// NotFound builds the canonical not-found error for an entity.
func NotFound(entity string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: entity + " not found", HTTPStatus: http.StatusNotFound}
}

// Invalid builds a validation error with a caller-facing message.
func Invalid(message string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: message, HTTPStatus: http.StatusBadRequest}
}

// AsAppError extracts an AppError from the chain, or wraps err as an
// internal error so handlers always have a code and status to render.
func AsAppError(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) {
		return target
	}
	return &AppError{Code: "INTERNAL", Message: "internal error", HTTPStatus: http.StatusInternalServerError, Err: err}
}
