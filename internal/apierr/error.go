package apierr

import (
	"fmt"
	"time"
)

// Error is the classified error record every failure path converges to before
// leaving the transport layer.
type Error struct {
	Message    string         `json:"message"`
	Code       Code           `json:"code"`
	Category   Category       `json:"category"`
	Severity   Severity       `json:"severity"`
	Retryable  bool           `json:"retryable"`
	HTTPStatus int            `json:"httpStatus,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Err        error          `json:"-"` // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s (%s, status %d): %s", e.Code, e.Category, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Category, e.Message)
}

// Unwrap exposes the original cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// WithContext returns e with the given key set in its context map.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New builds a classified error directly, for failure paths that are already
// understood (pagination validation, offline refusal, queue abandonment).
func New(code Code, category Category, severity Severity, retryable bool, message string) *Error {
	return &Error{
		Message:   message,
		Code:      code,
		Category:  category,
		Severity:  severity,
		Retryable: retryable,
		Timestamp: time.Now(),
	}
}

// IsRetryable reports whether err is a classified error marked retryable.
// Unclassified errors are never considered retryable.
func IsRetryable(err error) bool {
	if ce, ok := err.(*Error); ok {
		return ce.Retryable
	}
	return false
}

// CodeOf returns the classified code of err, or CodeUnknown.
func CodeOf(err error) Code {
	if ce, ok := err.(*Error); ok {
		return ce.Code
	}
	return CodeUnknown
}
