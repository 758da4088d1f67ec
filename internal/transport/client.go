// Package transport implements the HTTP client for the document platform API:
// URL building, auth header attachment, per-attempt timeouts, retry with
// exponential backoff, JSON/text body parsing, and structured request logging.
// Every failure leaving this package is a classified *apierr.Error.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"docdash/internal/apierr"
	"docdash/internal/logging"

	"github.com/google/uuid"
)

const maxBodyBytes = 10 * 1024 * 1024 // response bodies are capped, same as upload payloads

// RetryPolicy controls the retry state machine.
type RetryPolicy struct {
	MaxRetries        int           // attempts beyond the first
	BaseDelay         time.Duration // delay before the first retry
	Multiplier        float64       // exponential backoff factor
	RetryableStatuses []int         // response statuses worth retrying
	Jitter            bool          // randomize delays to avoid retry stampedes
}

// DefaultRetryPolicy matches the platform defaults: three retries, one second
// base delay, doubling each attempt, jittered.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		Multiplier:        2.0,
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
		Jitter:            true,
	}
}

func (p RetryPolicy) statusRetryable(status int) bool {
	for _, s := range p.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// delay computes the backoff before retry number attempt (0-based).
// With jitter enabled the delay lands in [d/2, d), so growth stays
// monotonic while concurrent retries desynchronize.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.Jitter {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration // per-attempt timeout
	Retry          RetryPolicy
	AuthHeader     string // default "Authorization"
	AuthPrefix     string // default "Bearer "
	DefaultHeaders map[string]string
	HTTPClient     *http.Client // optional override, mainly for tests
}

// Client issues requests against the platform API. The auth token is the only
// mutable state and is owned exclusively by the client.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	timeout        time.Duration
	retry          RetryPolicy
	authHeader     string
	authPrefix     string
	defaultHeaders map[string]string

	mu    sync.RWMutex
	token string
}

// New creates a Client from config, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Retry.MaxRetries < 0 {
		// Do always makes at least one attempt.
		cfg.Retry.MaxRetries = 0
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.AuthPrefix == "" {
		cfg.AuthPrefix = "Bearer "
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     hc,
		timeout:        cfg.Timeout,
		retry:          cfg.Retry,
		authHeader:     cfg.AuthHeader,
		authPrefix:     cfg.AuthPrefix,
		defaultHeaders: cfg.DefaultHeaders,
	}
}

// SetToken sets the bearer token attached to every subsequent request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken removes the auth token.
func (c *Client) ClearToken() { c.SetToken("") }

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Request describes one logical API call. PathParams substitute {name}
// segments; Query values that are empty are omitted from the URL.
type Request struct {
	Method     string
	Path       string
	PathParams map[string]string
	Query      map[string]string
	Body       any               // JSON-encoded unless RawBody is set
	RawBody    []byte            // pre-encoded body (multipart uploads); kept as bytes so retries can replay it
	RawType    string            // content type for RawBody
	Headers    map[string]string // per-call overrides
	Timeout    time.Duration     // per-attempt override

	// MutationSafe restricts retries to 5xx/network failures so writes are
	// never replayed on an ambiguous outcome.
	MutationSafe bool
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST request with a JSON body. Retries only on 5xx/network.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body, MutationSafe: true})
}

// Put issues a PUT request with a JSON body. Retries only on 5xx/network.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body, MutationSafe: true})
}

// Patch issues a PATCH request with a JSON body. Retries only on 5xx/network.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body, MutationSafe: true})
}

// Delete issues a DELETE request. Retries only on 5xx/network.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path, MutationSafe: true})
}

// Do runs the retry state machine for a request. On success it returns the
// parsed response; on exhaustion it returns the last classified error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	reqID := uuid.NewString()
	targetURL, err := c.buildURL(req)
	if err != nil {
		return nil, apierr.Classify(err, map[string]any{
			"endpoint": req.Path, "method": req.Method,
		})
	}

	var encoded []byte
	if req.Body != nil {
		encoded, err = json.Marshal(req.Body)
		if err != nil {
			return nil, apierr.Classify(fmt.Errorf("failed to marshal request body: %w", err),
				map[string]any{"endpoint": req.Path, "method": req.Method})
		}
	}

	rl := logging.WithRequestID(logging.CategoryTransport, reqID)
	rl.Structured("info", "request", map[string]any{
		"method":  req.Method,
		"url":     targetURL,
		"headers": c.redactedHeaders(req),
		"size":    approxSize(encoded, req.RawBody),
	})

	maxAttempts := c.retry.MaxRetries + 1
	var lastErr *apierr.Error
	attempts := 0
	start := time.Now()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.retry.delay(attempt-1)); err != nil {
				// Caller went away while we were waiting to retry.
				lastErr = apierr.Classify(err, map[string]any{
					"endpoint": req.Path, "method": req.Method, "attempts": attempts,
				})
				break
			}
		}
		attempts++

		resp, attemptErr := c.attempt(ctx, req, targetURL, encoded)
		if attemptErr == nil {
			rl.Structured("info", "response", map[string]any{
				"method":   req.Method,
				"url":      targetURL,
				"status":   resp.Status,
				"duration": time.Since(start).String(),
				"size":     len(resp.Body),
				"attempts": attempts,
			})
			return resp, nil
		}

		lastErr = apierr.Classify(attemptErr, map[string]any{
			"endpoint": req.Path,
			"method":   req.Method,
			"attempts": attempts,
		})
		if !c.shouldRetry(req, lastErr) {
			break
		}
	}

	rl.Structured("error", "request failed", map[string]any{
		"method":   req.Method,
		"url":      targetURL,
		"code":     string(lastErr.Code),
		"category": string(lastErr.Category),
		"attempts": attempts,
		"duration": time.Since(start).String(),
	})
	return nil, lastErr
}

// shouldRetry applies the retry rules: retryable statuses for reads, only
// 5xx/network-class failures for mutations, and never caller cancellation.
func (c *Client) shouldRetry(req *Request, e *apierr.Error) bool {
	if e.Code == apierr.CodeCancelled {
		return false
	}
	if e.HTTPStatus > 0 {
		if req.MutationSafe {
			return e.HTTPStatus >= 500
		}
		return c.retry.statusRetryable(e.HTTPStatus)
	}
	// No status: network or timeout class.
	return e.Retryable
}

// attempt runs a single HTTP exchange with its own timeout.
func (c *Client) attempt(parent context.Context, req *Request, targetURL string, encoded []byte) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var bodyReader io.Reader
	contentType := ""
	switch {
	case req.RawBody != nil:
		bodyReader = bytes.NewReader(req.RawBody)
		contentType = req.RawType
	case encoded != nil:
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, targetURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token := c.currentToken(); token != "" {
		httpReq.Header.Set(c.authHeader, c.authPrefix+token)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// A tripped per-attempt deadline is a timeout; a dead parent context
		// is caller cancellation. The distinction matters for retry and logs.
		if ctx.Err() == context.DeadlineExceeded && parent.Err() == nil {
			return nil, context.DeadlineExceeded
		}
		if parent.Err() != nil {
			return nil, parent.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &apierr.HTTPError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return &Response{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    resp.Header,
		Body:       body,
		IsJSON:     strings.Contains(resp.Header.Get("Content-Type"), "json"),
	}, nil
}

// redactedHeaders returns the headers a request will carry with secrets
// replaced, suitable for logging.
func (c *Client) redactedHeaders(req *Request) map[string]string {
	out := make(map[string]string)
	for k, v := range c.defaultHeaders {
		out[k] = v
	}
	if c.currentToken() != "" {
		out[c.authHeader] = "[REDACTED]"
	}
	for k, v := range req.Headers {
		out[k] = v
	}
	for k := range out {
		switch strings.ToLower(k) {
		case "authorization", "cookie", "set-cookie", "x-api-key", "api-key", "proxy-authorization":
			out[k] = "[REDACTED]"
		}
	}
	return out
}

func approxSize(encoded, raw []byte) int {
	if encoded != nil {
		return len(encoded)
	}
	return len(raw)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
