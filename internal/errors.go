package internal

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeInternal   ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeInvalidPayload  ErrorCode = "INVALID_PAYLOAD"
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	ErrCodeOrderNotFound           ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"

	ErrCodeUnresolvableCallback  ErrorCode = "UNRESOLVABLE_CALLBACK"
	ErrCodeUnknownGateway        ErrorCode = "UNKNOWN_GATEWAY"
	ErrCodeDuplicateAttempt      ErrorCode = "DUPLICATE_PAYMENT_ATTEMPT"
	ErrCodeTransactionalFailure  ErrorCode = "TRANSACTIONAL_FAILURE"
	ErrCodeReconciliationTimeout ErrorCode = "RECONCILIATION_TIMEOUT"
)

// AppError carries the HTTP status a failure maps to; Acknowledge uses it for rejected callbacks.
type AppError struct {
	Type       ErrorType
	Code       ErrorCode
	Message    string
	StatusCode int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches AppErrors by code so that sentinel values keep working after WithCause copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Type == t.Type
}

// WithCause returns a copy of e carrying cause; sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewTransactionalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeTransactionalFailure,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrOrderNotFound           = NewNotFoundError("order not found", ErrCodeOrderNotFound)
	ErrInvalidStatusTransition = NewValidationError("invalid order status transition", ErrCodeInvalidStatusTransition)

	ErrUnresolvableCallback = NewValidationError("callback carries no order reference", ErrCodeUnresolvableCallback)
	ErrUnknownGateway       = NewNotFoundError("unknown payment gateway", ErrCodeUnknownGateway)
	ErrDuplicateAttempt     = NewConflictError("payment attempt already recorded", ErrCodeDuplicateAttempt)
	ErrPayloadTooLarge      = &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodePayloadTooLarge,
		Message:    "callback body too large",
		StatusCode: http.StatusRequestEntityTooLarge,
	}
	ErrReconcileTimeout = &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeReconciliationTimeout,
		Message:    "reconciliation timed out",
		StatusCode: http.StatusInternalServerError,
	}
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
