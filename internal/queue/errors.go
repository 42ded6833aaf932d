package queue

import (
	"errors"
	"fmt"
)

// Store sentinels. Controllers and handlers branch on these with errors.Is.
var (
	ErrQueueNotFound   = errors.New("queue: queue not found")
	ErrTokenNotFound   = errors.New("queue: token not found")
	ErrQueueExists     = errors.New("queue: queue already exists")
	ErrTokenExists     = errors.New("queue: token already exists")
	ErrVersionConflict = errors.New("queue: queue version conflict")
)

// Code classifies engine failures for transport mapping.
type Code string

const (
	CodeInvalidState           Code = "INVALID_STATE"
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeCapacityExceeded       Code = "CAPACITY_EXCEEDED"
	CodeConsultationInProgress Code = "CONSULTATION_IN_PROGRESS"
	CodeQueueEmpty             Code = "QUEUE_EMPTY"
	CodeNotFound               Code = "NOT_FOUND"
	CodeConcurrencyConflict    Code = "CONCURRENCY_CONFLICT"
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Error is a classified engine failure. Message is safe to return to
// API clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("queue: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("queue: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Invalid builds a VALIDATION_ERROR for malformed input.
func Invalid(msg string) error {
	return &Error{Code: CodeValidation, Message: msg}
}

// InvalidState builds an INVALID_STATE error for an operation the queue's
// current status does not admit.
func InvalidState(format string, args ...any) error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// CapacityDenied builds a CAPACITY_EXCEEDED error.
func CapacityDenied(format string, args ...any) error {
	return &Error{Code: CodeCapacityExceeded, Message: fmt.Sprintf(format, args...)}
}

// InProgress builds a CONSULTATION_IN_PROGRESS error.
func InProgress(format string, args ...any) error {
	return &Error{Code: CodeConsultationInProgress, Message: fmt.Sprintf(format, args...)}
}

// Empty builds a QUEUE_EMPTY error.
func Empty(format string, args ...any) error {
	return &Error{Code: CodeQueueEmpty, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NOT_FOUND error wrapping the store sentinel so
// errors.Is keeps working across the boundary.
func NotFound(sentinel error, format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Err: sentinel}
}

// Conflict builds a CONCURRENCY_CONFLICT error.
func Conflict(format string, args ...any) error {
	return &Error{Code: CodeConcurrencyConflict, Message: fmt.Sprintf(format, args...), Err: ErrVersionConflict}
}

// CodeOf extracts the failure code from err, mapping bare store sentinels
// that were never classified. Unrecognized errors report CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrQueueNotFound), errors.Is(err, ErrTokenNotFound):
		return CodeNotFound
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrQueueExists), errors.Is(err, ErrTokenExists):
		return CodeConcurrencyConflict
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message from err, or a generic one.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	switch {
	case errors.Is(err, ErrQueueNotFound):
		return "queue not found"
	case errors.Is(err, ErrTokenNotFound):
		return "token not found"
	}
	return "internal error"
}
