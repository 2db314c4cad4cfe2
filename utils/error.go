package utils

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// ErrorType is the API-facing error taxonomy. The workflow engine returns
// these and the HTTP layer maps them straight onto a status code + envelope.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "ValidationError"
	ErrorTypeForbidden  ErrorType = "ForbiddenError"
	ErrorTypeNotFound   ErrorType = "NotFoundError"
	ErrorTypeConflict   ErrorType = "ConflictError"
	ErrorTypeSession    ErrorType = "SessionError"
	ErrorTypeInternal   ErrorType = "InternalError"
)

type APIError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) StatusCode() int {
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeSession:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(message string, err error) *APIError {
	return &APIError{Type: ErrorTypeValidation, Message: message, Err: err}
}

func NewForbiddenError(message string, err error) *APIError {
	return &APIError{Type: ErrorTypeForbidden, Message: message, Err: err}
}

func NewNotFoundError(message string, err error) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message, Err: err}
}

func NewConflictError(message string, err error) *APIError {
	return &APIError{Type: ErrorTypeConflict, Message: message, Err: err}
}

func NewSessionError(message string, err error) *APIError {
	return &APIError{Type: ErrorTypeSession, Message: message, Err: err}
}

func NewInternalError(message string, err error) *APIError {
	return &APIError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// AsAPIError normalizes any error into an APIError. Plain errors (including
// the record-not-found sentinel) get mapped conservatively.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, ErrorRecordNotFound) {
		return NewNotFoundError(err.Error(), nil)
	}
	return NewInternalError("internal server error", err)
}
