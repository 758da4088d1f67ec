package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		category  Category
		severity  Severity
		retryable bool
	}{
		{"500 is retryable system failure", 500, CategorySystem, SeverityHigh, true},
		{"502 is retryable system failure", 502, CategorySystem, SeverityHigh, true},
		{"503 is retryable system failure", 503, CategorySystem, SeverityHigh, true},
		{"400 is non-retryable validation", 400, CategoryValidation, SeverityLow, false},
		{"404 is non-retryable validation", 404, CategoryValidation, SeverityLow, false},
		{"422 is non-retryable validation", 422, CategoryValidation, SeverityLow, false},
		{"401 is authentication", 401, CategoryAuthentication, SeverityMedium, false},
		{"403 is authorization", 403, CategoryAuthorization, SeverityMedium, false},
		{"408 is retryable", 408, CategoryValidation, SeverityMedium, true},
		{"429 is retryable", 429, CategoryValidation, SeverityMedium, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FromStatus(tt.status, "")
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, Code(fmt.Sprintf("HTTP_%d", tt.status)), e.Code)
		})
	}
}

func TestClassifyHTTPError(t *testing.T) {
	e := Classify(&HTTPError{Status: 500, StatusText: "Internal Server Error", Body: "boom"}, nil)
	require.NotNil(t, e)
	assert.Equal(t, CategorySystem, e.Category)
	assert.Equal(t, "boom", e.Message)
	assert.True(t, e.Retryable)
}

func TestClassifyTimeout(t *testing.T) {
	e := Classify(context.DeadlineExceeded, map[string]any{"endpoint": "/documents"})
	require.NotNil(t, e)
	assert.Equal(t, CodeTimeout, e.Code)
	assert.Equal(t, CategoryNetwork, e.Category)
	assert.Equal(t, SeverityHigh, e.Severity)
	assert.True(t, e.Retryable)
	assert.Equal(t, "/documents", e.Context["endpoint"])
}

func TestClassifyCancellationIsNotTimeout(t *testing.T) {
	e := Classify(context.Canceled, nil)
	require.NotNil(t, e)
	assert.Equal(t, CodeCancelled, e.Code)
	assert.False(t, e.Retryable)
}

func TestClassifyNetError(t *testing.T) {
	var raw error = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	e := Classify(fmt.Errorf("request failed: %w", raw), nil)
	require.NotNil(t, e)
	assert.Equal(t, CodeNetwork, e.Code)
	assert.Equal(t, CategoryNetwork, e.Category)
	assert.True(t, e.Retryable)
}

func TestClassifyUnknown(t *testing.T) {
	e := Classify(errors.New("something odd"), nil)
	require.NotNil(t, e)
	assert.Equal(t, CodeUnknown, e.Code)
	assert.Equal(t, CategorySystem, e.Category)
	assert.Equal(t, SeverityCritical, e.Severity)
	assert.False(t, e.Retryable)
	assert.Equal(t, "Unknown error occurred", e.Message)
}

func TestClassifyIsIdempotent(t *testing.T) {
	first := Classify(&HTTPError{Status: 404}, map[string]any{"id": "doc-1"})
	second := Classify(first, map[string]any{"attempt": 2})

	// Same classification, merged context.
	assert.Same(t, first, second)
	assert.Equal(t, "doc-1", second.Context["id"])
	assert.Equal(t, 2, second.Context["attempt"])
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := Classify(fmt.Errorf("wrap: %w", cause), nil)
	assert.True(t, errors.Is(e, cause))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(FromStatus(503, "")))
	assert.False(t, IsRetryable(FromStatus(404, "")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestTimestampSet(t *testing.T) {
	e := FromStatus(500, "")
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Second)
}
