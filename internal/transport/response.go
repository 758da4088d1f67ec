package transport

import (
	"fmt"
	"net/http"

	"encoding/json"

	"docdash/internal/apierr"
)

// Response is the parsed result of a successful (status < 400) exchange.
type Response struct {
	Status     int
	StatusText string
	Headers    http.Header
	Body       []byte
	IsJSON     bool
}

// Decode unmarshals a JSON response body into v. Non-JSON bodies can still be
// decoded if they happen to parse; a mismatch surfaces as a classified decode
// error so callers never see a bare json error.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil // 204-style responses decode to the zero value
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		ce := apierr.New(apierr.CodeDecode, apierr.CategorySystem, apierr.SeverityHigh, false,
			fmt.Sprintf("failed to decode response body: %v", err))
		ce.Err = err
		return ce
	}
	return nil
}

// Text returns the body as a string, for non-JSON endpoints (exports, raw
// extractions).
func (r *Response) Text() string { return string(r.Body) }
