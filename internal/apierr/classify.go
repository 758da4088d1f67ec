package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPError carries a raw HTTP failure from the transport into classification.
// It exists so the status code survives until Classify runs.
type HTTPError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.StatusText, e.Body)
}

// Classify converts any failure into exactly one classified Error. Already
// classified errors pass through with the extra context merged in, so double
// classification is harmless.
func Classify(err error, ctx map[string]any) *Error {
	if err == nil {
		return nil
	}

	if ce, ok := asClassified(err); ok {
		for k, v := range ctx {
			ce.WithContext(k, v)
		}
		return ce
	}

	ce := classifyRaw(err)
	for k, v := range ctx {
		ce.WithContext(k, v)
	}
	return ce
}

func asClassified(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func classifyRaw(err error) *Error {
	// HTTP status carries the most signal; check it first.
	var he *HTTPError
	if errors.As(err, &he) {
		return FromStatus(he.Status, he.Body)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Message:   "Request timed out",
			Code:      CodeTimeout,
			Category:  CategoryNetwork,
			Severity:  SeverityHigh,
			Retryable: true,
			Timestamp: time.Now(),
			Err:       err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &Error{
			Message:   "Request cancelled",
			Code:      CodeCancelled,
			Category:  CategoryNetwork,
			Severity:  SeverityLow,
			Retryable: false,
			Timestamp: time.Now(),
			Err:       err,
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		code := CodeNetwork
		if ne.Timeout() {
			code = CodeTimeout
		}
		return &Error{
			Message:   ne.Error(),
			Code:      code,
			Category:  CategoryNetwork,
			Severity:  SeverityHigh,
			Retryable: true,
			Timestamp: time.Now(),
			Err:       err,
		}
	}

	// Any other error value is an unknown failure.
	return &Error{
		Message:   "Unknown error occurred",
		Code:      CodeUnknown,
		Category:  CategorySystem,
		Severity:  SeverityCritical,
		Retryable: false,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// FromStatus classifies an HTTP status code per the platform taxonomy:
// 5xx is a retryable system failure, 401/403 are auth failures, the rest of
// 4xx is validation and only 408/429 may be retried.
func FromStatus(status int, body string) *Error {
	msg := body
	if msg == "" {
		msg = http.StatusText(status)
	}

	e := &Error{
		Message:    msg,
		Code:       Code(fmt.Sprintf("HTTP_%d", status)),
		HTTPStatus: status,
		Timestamp:  time.Now(),
	}

	switch {
	case status >= 500:
		e.Category = CategorySystem
		e.Severity = SeverityHigh
		e.Retryable = true
	case status == http.StatusUnauthorized:
		e.Category = CategoryAuthentication
		e.Severity = SeverityMedium
		e.Retryable = false
	case status == http.StatusForbidden:
		e.Category = CategoryAuthorization
		e.Severity = SeverityMedium
		e.Retryable = false
	case status >= 400:
		e.Category = CategoryValidation
		e.Severity = SeverityLow
		e.Retryable = status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
		if e.Retryable {
			// Timeouts and throttling are worth surfacing more loudly.
			e.Severity = SeverityMedium
		}
	default:
		e.Category = CategorySystem
		e.Severity = SeverityMedium
		e.Retryable = false
	}

	return e
}
