// Package apierr normalizes every failure coming out of the API client into a
// single classified error type carrying category, severity, and retryability.
// Classification is pure: no logging or I/O happens here.
package apierr

// Code identifies a specific error condition. Codes are string-based for
// debuggability and natural JSON serialization.
type Code string

const (
	// CodeTimeout indicates a request exceeded its per-attempt time limit.
	CodeTimeout Code = "TIMEOUT"

	// CodeCancelled indicates the caller cancelled the request. Distinct from
	// TIMEOUT so logs can tell the two apart.
	CodeCancelled Code = "CANCELLED"

	// CodeNetwork indicates a connection-level failure (refused, reset, DNS).
	CodeNetwork Code = "NETWORK_ERROR"

	// CodeDecode indicates a response body could not be parsed.
	CodeDecode Code = "DECODE_ERROR"

	// CodeOffline indicates the operation was refused because the client is
	// known to be disconnected.
	CodeOffline Code = "OFFLINE"

	// CodeQueueAbandoned indicates a queued write exhausted its replay budget.
	CodeQueueAbandoned Code = "QUEUE_ABANDONED"

	// CodeInvalidPagination indicates page/limit parameters failed validation
	// before any request was sent.
	CodeInvalidPagination Code = "INVALID_PAGINATION"

	// CodeUnknown indicates a failure that could not be identified.
	CodeUnknown Code = "UNKNOWN_ERROR"
)

// Category buckets an error by its origin.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryBusiness       Category = "business"
	CategorySystem         Category = "system"
)

// Severity ranks how loudly a failure should be surfaced.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)
