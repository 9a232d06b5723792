package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for the payment engine's error taxonomy.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrNotAllowed      = errors.New("operation not allowed")
	ErrUnexpectedState = errors.New("unexpected state")
	ErrInvalidInput    = errors.New("invalid input")
	ErrProgramming     = errors.New("programming error")
	ErrInternal        = errors.New("internal error")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error for a missing resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s was not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// NotAllowed creates a 400 error for a business-rule violation, such as
// refunding an uncaptured payment or exceeding the refundable amount.
func NotAllowed(message string) *AppError {
	return &AppError{
		Code:    "NOT_ALLOWED",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrNotAllowed,
	}
}

// UnexpectedState creates a 409 error for an operation that failed despite
// its preconditions being satisfied, typically a gateway failure. The
// underlying cause is preserved and can be recovered with errors.Unwrap.
func UnexpectedState(message string, cause error) *AppError {
	err := error(ErrUnexpectedState)
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUnexpectedState, cause)
	}
	return &AppError{
		Code:    "UNEXPECTED_STATE",
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// InvalidInput creates a 400 error for malformed caller input.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Programming creates a 500 error for a caller defect, such as invoking a
// store operation outside a transaction scope. It is fatal, never retried,
// and never surfaced to end users as a business error.
func Programming(message string) *AppError {
	return &AppError{
		Code:    "PROGRAMMING_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrProgramming,
	}
}

// Internal creates a 500 error wrapping an unexpected failure.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotAllowed), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnexpectedState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
