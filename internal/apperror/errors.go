package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeForbidden   ErrorCode = "FORBIDDEN"
	ErrCodeConflict    ErrorCode = "CONFLICT"
	ErrCodeGateway     ErrorCode = "GATEWAY_ERROR"
	ErrCodePersistence ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// AppError is the error type services return to handlers. Code determines
// the HTTP status; Cause keeps the underlying error for logs.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatusOf maps any error to a response status. Unknown errors are 500.
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool  { return IsCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool  { return IsCode(err, ErrCodeConflict) }
func IsForbidden(err error) bool { return IsCode(err, ErrCodeForbidden) }

var (
	ErrBookingNotFound = New(ErrCodeNotFound, "booking not found")
	ErrProductNotFound = New(ErrCodeNotFound, "product not found")
	ErrForbidden       = New(ErrCodeForbidden, "insufficient permissions")
)
