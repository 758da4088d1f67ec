package offline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docdash/internal/apierr"
	"docdash/internal/kvstore"
	"docdash/internal/netmon"
	"docdash/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSender records replayed requests and answers from a scripted queue.
type stubSender struct {
	mu       sync.Mutex
	requests []*transport.Request
	respond  func(n int, req *transport.Request) error // n is 1-based call count
}

func (s *stubSender) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	n := len(s.requests)
	s.mu.Unlock()
	if s.respond != nil {
		if err := s.respond(n, req); err != nil {
			return nil, err
		}
	}
	return &transport.Response{Status: 200}, nil
}

func (s *stubSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type notice struct{ level, msg string }

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level, message})
}

func (n *recordingNotifier) levels() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notices))
	for i, nt := range n.notices {
		out[i] = nt.level
	}
	return out
}

func TestShouldQueue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", apierr.New(apierr.CodeTimeout, apierr.CategoryNetwork, apierr.SeverityHigh, true, "timed out"), true},
		{"network", apierr.New(apierr.CodeNetwork, apierr.CategoryNetwork, apierr.SeverityHigh, true, "refused"), true},
		{"offline", apierr.New(apierr.CodeOffline, apierr.CategoryNetwork, apierr.SeverityHigh, true, "offline"), true},
		{"validation", apierr.FromStatus(422, ""), false},
		{"server error", apierr.FromStatus(500, ""), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldQueue(tt.err))
		})
	}
}

func newQueue(t *testing.T, sender Sender, notifier Notifier) *Queue {
	t.Helper()
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(Options{Store: store, Sender: sender, Notifier: notifier, MaxRetries: 3})
}

func TestEnqueuePersistsAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	q := newQueue(t, &stubSender{}, notifier)

	var sizes []int
	unsub := q.AddSizeListener(func(n int) { sizes = append(sizes, n) })
	defer unsub()

	it, err := q.Enqueue(Item{
		Op:       OpCreate,
		Method:   "POST",
		Endpoint: "/documents/upload",
		Payload:  json.RawMessage(`{"title":"draft"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, it.ID)
	assert.False(t, it.EnqueuedAt.IsZero())
	assert.Equal(t, 3, it.MaxRetries)

	assert.Equal(t, []int{1}, sizes)
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "info", notifier.notices[0].level)

	items, err := q.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, it.ID, items[0].ID)
}

func TestProcessReplaysInEnqueueOrder(t *testing.T) {
	sender := &stubSender{}
	q := newQueue(t, sender, nil)

	for _, ep := range []string{"/documents/doc-1", "/documents/doc-2", "/documents/doc-3"} {
		_, err := q.Enqueue(Item{Op: OpDelete, Method: "DELETE", Endpoint: ep})
		require.NoError(t, err)
	}

	sum, err := q.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 3, Completed: 3}, sum)

	require.Len(t, sender.requests, 3)
	for i, want := range []string{"/documents/doc-1", "/documents/doc-2", "/documents/doc-3"} {
		assert.Equal(t, want, sender.requests[i].Path)
		assert.True(t, sender.requests[i].MutationSafe)
	}

	n, err := q.Size()
	require.NoError(t, err)
	assert.Zero(t, n, "completed items are removed")
}

func TestSecondAttemptSuccessIsNotRetriedAgain(t *testing.T) {
	sender := &stubSender{
		respond: func(n int, req *transport.Request) error {
			if n == 1 {
				return apierr.FromStatus(503, "")
			}
			return nil
		},
	}
	q := newQueue(t, sender, nil)

	_, err := q.Enqueue(Item{Op: OpUpdate, Method: "PUT", Endpoint: "/documents/doc-1"})
	require.NoError(t, err)

	sum, err := q.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Requeued: 1}, sum)

	items, err := q.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].RetryCount)

	sum, err = q.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Completed: 1}, sum)

	sum, err = q.Process(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Attempted, "a completed item never replays again")
	assert.Equal(t, 2, sender.calls())
}

func TestAbandonAfterMaxRetries(t *testing.T) {
	sender := &stubSender{
		respond: func(n int, req *transport.Request) error {
			return apierr.FromStatus(500, "")
		},
	}
	notifier := &recordingNotifier{}
	q := newQueue(t, sender, notifier)

	_, err := q.Enqueue(Item{Op: OpCreate, Method: "POST", Endpoint: "/collections", MaxRetries: 2})
	require.NoError(t, err)

	ctx := context.Background()
	sum1, _ := q.Process(ctx)
	sum2, _ := q.Process(ctx)
	sum3, _ := q.Process(ctx)

	assert.Equal(t, Summary{Attempted: 1, Requeued: 1}, sum1)
	assert.Equal(t, Summary{Attempted: 1, Requeued: 1}, sum2)
	assert.Equal(t, Summary{Attempted: 1, Abandoned: 1}, sum3)

	n, err := q.Size()
	require.NoError(t, err)
	assert.Zero(t, n, "abandoned items are removed")

	assert.Contains(t, notifier.levels(), "error", "abandonment must surface a permanent-failure notice")
}

func TestNonRetryableFailureAbandonsImmediately(t *testing.T) {
	sender := &stubSender{
		respond: func(n int, req *transport.Request) error {
			return apierr.FromStatus(422, `{"detail":"bad payload"}`)
		},
	}
	notifier := &recordingNotifier{}
	q := newQueue(t, sender, notifier)

	_, err := q.Enqueue(Item{Op: OpCreate, Method: "POST", Endpoint: "/collections"})
	require.NoError(t, err)

	sum, err := q.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Abandoned: 1}, sum)
	assert.Equal(t, 1, sender.calls(), "a rejection the server will repeat is not retried")
}

func TestProcessIsSingleFlight(t *testing.T) {
	release := make(chan struct{})
	sender := &stubSender{
		respond: func(n int, req *transport.Request) error {
			<-release
			return nil
		},
	}
	q := newQueue(t, sender, nil)

	_, err := q.Enqueue(Item{Op: OpDelete, Method: "DELETE", Endpoint: "/documents/doc-1"})
	require.NoError(t, err)

	var first Summary
	done := make(chan struct{})
	go func() {
		defer close(done)
		first, _ = q.Process(context.Background())
	}()

	// Wait for the first pass to be mid-replay, then race a second one.
	require.Eventually(t, func() bool { return sender.calls() == 1 }, time.Second, time.Millisecond)
	second, err := q.Process(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Attempted, "concurrent pass must yield to the active one")

	close(release)
	<-done
	assert.Equal(t, Summary{Attempted: 1, Completed: 1}, first)
}

func TestDrainOnReconnect(t *testing.T) {
	var drains atomic.Int32
	sender := &stubSender{
		respond: func(n int, req *transport.Request) error {
			drains.Add(1)
			return nil
		},
	}
	q := newQueue(t, sender, nil)
	_, err := q.Enqueue(Item{Op: OpDelete, Method: "DELETE", Endpoint: "/documents/doc-1"})
	require.NoError(t, err)

	m := netmon.New(netmon.Options{ProbeURL: "http://unused.invalid/health"})
	unsub := q.AttachMonitor(context.Background(), m)
	defer unsub()

	m.SetOnline(false)
	m.SetOnline(true)

	require.Eventually(t, func() bool { return drains.Load() == 1 }, time.Second, time.Millisecond)

	// Staying online must not trigger another drain.
	m.SetOnline(true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), drains.Load(), "exactly one drain per offline-to-online transition")
}

func TestClear(t *testing.T) {
	q := newQueue(t, &stubSender{}, nil)

	_, err := q.Enqueue(Item{Op: OpDelete, Method: "DELETE", Endpoint: "/documents/doc-1"})
	require.NoError(t, err)

	require.NoError(t, q.Clear())
	n, err := q.Size()
	require.NoError(t, err)
	assert.Zero(t, n)
}
