package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error code
type ErrorCode string

const (
	CodeValidation              ErrorCode = "VALIDATION_ERROR"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodeForbidden               ErrorCode = "FORBIDDEN"
	CodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	CodeSlotNotAvailable        ErrorCode = "SLOT_NOT_AVAILABLE"
	CodeAppointmentConflict     ErrorCode = "APPOINTMENT_CONFLICT"
	CodeReschedulePending       ErrorCode = "RESCHEDULE_PENDING"
	CodeTimeout                 ErrorCode = "REQUEST_TIMEOUT"
	CodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status. The error handling
// middleware uses this to pick the response status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidStatusTransition, CodeSlotNotAvailable, CodeAppointmentConflict, CodeReschedulePending:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func Validation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

func NotFound(resource string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

func InvalidStatusTransition(from, to string) *AppError {
	return &AppError{
		Code:    CodeInvalidStatusTransition,
		Message: fmt.Sprintf("cannot transition appointment from %s to %s", from, to),
	}
}

func SlotNotAvailable() *AppError {
	return &AppError{Code: CodeSlotNotAvailable, Message: "this time slot is not available"}
}

func AppointmentConflict() *AppError {
	return &AppError{
		Code:    CodeAppointmentConflict,
		Message: "an appointment with this doctor at this time already exists",
	}
}

func ReschedulePending() *AppError {
	return &AppError{
		Code:    CodeReschedulePending,
		Message: "a reschedule request is already pending for this appointment",
	}
}

func Internal(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "internal server error", Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// From extracts an AppError, wrapping anything unknown as internal so
// store-level details never reach a client.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
