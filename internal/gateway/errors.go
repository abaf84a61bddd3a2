package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies an execution failure so callers can decide whether to retry.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindAcquisitionTimeout Kind = "AcquisitionTimeout"
	KindStore              Kind = "StoreError"
	KindSerialization      Kind = "SerializationError"
)

// Codes refining a Kind.
const (
	CodeEmptyQuery      = "EmptyQuery"
	CodeMalformedQuery  = "MalformedQuery"
	CodeInvalidParams   = "InvalidParams"
	CodePolicyDenied    = "PolicyDenied"
	CodePoolClosed      = "PoolClosed"
	CodeAcquireTimeout  = "Timeout"
	CodeQueryTimeout    = "QueryTimeout"
	CodeQueryCanceled   = "QueryCanceled"
	CodeSessionFailed   = "SessionFailed"
	CodeUnsupportedType = "UnsupportedValue"
)

var (
	// ErrPoolClosed is returned by SessionPool.Acquire after Close.
	ErrPoolClosed = errors.New("session pool closed")
	// ErrAcquireTimeout is returned when no session frees up within the bound.
	ErrAcquireTimeout = errors.New("session acquisition timed out")
)

// ExecutionError is the only error type returned by Gateway.Execute.
type ExecutionError struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" if err is not an ExecutionError.
func KindOf(err error) Kind {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return ""
}

// IsRetryable reports whether reissuing the same request may succeed.
func IsRetryable(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Retryable
	}
	return false
}

func validationError(code, msg string) *ExecutionError {
	return &ExecutionError{Kind: KindValidation, Code: code, Message: msg}
}

func acquisitionError(err error) *ExecutionError {
	if errors.Is(err, ErrPoolClosed) {
		return &ExecutionError{Kind: KindAcquisitionTimeout, Code: CodePoolClosed, Message: err.Error(), Err: err}
	}
	return &ExecutionError{Kind: KindAcquisitionTimeout, Code: CodeAcquireTimeout, Message: err.Error(), Retryable: true, Err: err}
}
