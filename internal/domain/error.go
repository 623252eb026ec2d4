package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	CodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	CodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	CodeFailedPrecond     ErrorCode = "FAILED_PRECONDITION"
	CodeUnavailable       ErrorCode = "UNAVAILABLE"
	CodeDeadlineExceeded  ErrorCode = "DEADLINE_EXCEEDED"
	CodeCanceled          ErrorCode = "CANCELED"
	CodeInternal          ErrorCode = "INTERNAL"
)

var (
	// ErrUnsupportedMethod indicates a request method outside the supported set.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrQueueFull indicates the pending+active count reached the queue capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed indicates an operation on a destroyed queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrRequestTimeout indicates the per-request deadline elapsed after retries.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrRequestCancelled indicates the request was cancelled while pending.
	ErrRequestCancelled = errors.New("request cancelled")
	// ErrDuplicateTool indicates a name collision during registration.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrInvalidToolDefinition indicates a definition that failed validation.
	ErrInvalidToolDefinition = errors.New("invalid tool definition")
	// ErrToolNotFound indicates an unknown tool id.
	ErrToolNotFound = errors.New("tool not found")
	// ErrNoLoaderFound indicates no loader is registered for the provider.
	ErrNoLoaderFound = errors.New("no loader registered for provider")
	// ErrPermissionDenied indicates a permission decision was enforced.
	ErrPermissionDenied = errors.New("permission denied")
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
		}
	}
	return E(code, op, "", err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrUnsupportedMethod), errors.Is(err, ErrInvalidToolDefinition):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrQueueFull):
		return CodeResourceExhausted, true
	case errors.Is(err, ErrQueueClosed):
		return CodeFailedPrecond, true
	case errors.Is(err, ErrRequestTimeout):
		return CodeDeadlineExceeded, true
	case errors.Is(err, ErrRequestCancelled):
		return CodeCanceled, true
	case errors.Is(err, ErrDuplicateTool):
		return CodeAlreadyExists, true
	case errors.Is(err, ErrToolNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrNoLoaderFound):
		return CodeFailedPrecond, true
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied, true
	default:
		return "", false
	}
}
