// internal/models/errors.go
// Error taxonomy shared by the core and the API layer

package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for status mapping
type ErrorKind string

// Error kinds
const (
	KindValidation ErrorKind = "validation"
	KindExecution  ErrorKind = "execution"
	KindParse      ErrorKind = "parse"
	KindResource   ErrorKind = "resource"
	KindNotFound   ErrorKind = "not_found"
	KindNotReady   ErrorKind = "not_ready"
	KindConflict   ErrorKind = "conflict"
)

// Sentinel errors
var (
	ErrInvalidProfile         = errors.New("invalid scan profile")
	ErrInvalidCustomArguments = errors.New("invalid custom arguments")
	ErrInvalidTarget          = errors.New("invalid target")
	ErrMissingField           = errors.New("missing required field")

	ErrLaunchFailure = errors.New("failed to launch scanner")
	ErrTimeout       = errors.New("scan timed out")
	ErrCancelled     = errors.New("scan cancelled")
	ErrNonZeroExit   = errors.New("scanner exited with non-zero status")

	ErrParse = errors.New("malformed scanner output")

	ErrTooManyJobs = errors.New("too many concurrent scan jobs")
	ErrShutdown    = errors.New("scan service is shutting down")

	ErrNotFound        = errors.New("job not found")
	ErrNotReady        = errors.New("job result not ready")
	ErrAlreadyTerminal = errors.New("job already finished")
)

var kinds = map[error]ErrorKind{
	ErrInvalidProfile:         KindValidation,
	ErrInvalidCustomArguments: KindValidation,
	ErrInvalidTarget:          KindValidation,
	ErrMissingField:           KindValidation,
	ErrLaunchFailure:          KindExecution,
	ErrTimeout:                KindExecution,
	ErrCancelled:              KindExecution,
	ErrNonZeroExit:            KindExecution,
	ErrParse:                  KindParse,
	ErrTooManyJobs:            KindResource,
	ErrShutdown:               KindResource,
	ErrNotFound:               KindNotFound,
	ErrNotReady:               KindNotReady,
	ErrAlreadyTerminal:        KindConflict,
}

// ScanError carries a sentinel plus caller-facing detail
type ScanError struct {
	Sentinel error
	Message  string
	Detail   string // tool diagnostics (stderr), may be empty
	Cause    error
}

// NewError wraps sentinel with a message
func NewError(sentinel error, format string, args ...interface{}) *ScanError {
	return &ScanError{Sentinel: sentinel, Message: fmt.Sprintf(format, args...)}
}

func (e *ScanError) Error() string {
	msg := e.Sentinel.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is matches the sentinel so errors.Is(err, ErrTimeout) works
func (e *ScanError) Is(target error) bool {
	return e.Sentinel == target
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithCause attaches an underlying error
func (e *ScanError) WithCause(err error) *ScanError {
	e.Cause = err
	return e
}

// WithDetail attaches tool diagnostics
func (e *ScanError) WithDetail(detail string) *ScanError {
	e.Detail = detail
	return e
}

// KindOf returns the taxonomy kind of err, or "" when unclassified
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// Retryable reports whether the caller may retry the same request later
func Retryable(err error) bool {
	return KindOf(err) == KindResource
}
