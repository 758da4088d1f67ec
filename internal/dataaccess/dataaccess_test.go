package dataaccess

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"docdash/internal/cache"
	"docdash/internal/config"
	"docdash/internal/transport"
)

// testServer wraps an httptest server with a per-path request counter.
type testServer struct {
	*httptest.Server
	mux *http.ServeMux

	mu    sync.Mutex
	calls map[string]int
}

func newTestServer() *testServer {
	ts := &testServer{mux: http.NewServeMux(), calls: make(map[string]int)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.calls[r.Method+" "+r.URL.Path]++
		ts.mu.Unlock()
		ts.mux.ServeHTTP(w, r)
	}))
	return ts
}

func (ts *testServer) count(methodPath string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.calls[methodPath]
}

func (ts *testServer) total() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, c := range ts.calls {
		n += c
	}
	return n
}

func (ts *testServer) json(t *testing.T, pattern string, v any) {
	t.Helper()
	ts.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			t.Errorf("encode %s: %v", pattern, err)
		}
	})
}

// newLayer builds a Layer against the test server with retries disabled and
// short poll intervals.
func newLayer(t *testing.T, ts *testServer) *Layer {
	t.Helper()
	client := transport.New(transport.Config{
		BaseURL: ts.URL,
		Timeout: 2 * time.Second,
		Retry:   transport.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, Multiplier: 2},
	})
	store := cache.NewStore(0)
	t.Cleanup(store.Close)

	cfg := config.DefaultConfig()
	cfg.Cache.PollInterval = 5 * time.Millisecond
	return New(client, store, cfg)
}

func docPage(docs []Document, page, limit, total int) Page[Document] {
	totalPages := (total + limit - 1) / limit
	return Page[Document]{
		Data: docs,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}
}
