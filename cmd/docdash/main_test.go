package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"docdash/internal/offline"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func commandNames(c *cobra.Command) []string {
	var names []string
	for _, sub := range c.Commands() {
		names = append(names, sub.Name())
	}
	return names
}

func TestCommandTree(t *testing.T) {
	names := commandNames(rootCmd)
	for _, want := range []string{"docs", "collections", "workflows", "health", "metrics", "rag", "queue", "config"} {
		assert.Contains(t, names, want)
	}
}

func TestDocsSubcommands(t *testing.T) {
	names := commandNames(docsCmd)
	for _, want := range []string{"list", "search", "get", "extract", "upload", "delete", "bulk-delete", "watch"} {
		assert.Contains(t, names, want)
	}
}

func TestGlobalFlags(t *testing.T) {
	for _, flag := range []string{"verbose", "json", "config", "api-url", "token", "timeout"} {
		require.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "missing global flag %q", flag)
	}
}

func TestQueuedWriteReplaysOnReconnect(t *testing.T) {
	var deletes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deletes.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("DOCDASH_STATE_DIR", t.TempDir())
	prevURL, prevPath, prevLogger := apiURL, configPath, logger
	apiURL = srv.URL
	configPath = filepath.Join(t.TempDir(), "docdash.yaml")
	logger = zap.NewNop()
	t.Cleanup(func() { apiURL, configPath, logger = prevURL, prevPath, prevLogger })

	a, err := newApp()
	require.NoError(t, err)
	defer a.close()

	_, err = a.queue.Enqueue(offline.Item{
		Op:       offline.OpDelete,
		Method:   http.MethodDelete,
		Endpoint: "/documents/doc-1",
	})
	require.NoError(t, err)

	// The reconnect listener wired in newApp must drain without any
	// explicit queue command.
	a.monitor.SetOnline(false)
	a.monitor.SetOnline(true)

	require.Eventually(t, func() bool { return deletes.Load() == 1 },
		2*time.Second, 10*time.Millisecond, "queued write must replay on reconnect")
	assert.Eventually(t, func() bool {
		n, err := a.queue.Size()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond, "replayed write must leave the queue")
}

func TestQueueSubcommands(t *testing.T) {
	names := commandNames(queueCmd)
	for _, want := range []string{"list", "process", "clear", "status"} {
		assert.Contains(t, names, want)
	}
}
