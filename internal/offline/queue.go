// Package offline implements the durable write queue. Mutations issued while
// the API is unreachable are persisted and replayed in enqueue order when
// connectivity returns; items that keep failing are abandoned after a bounded
// number of attempts, with a user-facing notice.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"docdash/internal/apierr"
	"docdash/internal/kvstore"
	"docdash/internal/logging"
	"docdash/internal/netmon"
	"docdash/internal/transport"

	"github.com/google/uuid"
)

// keyPrefix namespaces queue rows inside the shared KV store. Keys embed a
// zero-padded sequence so lexicographic key order is enqueue order.
const keyPrefix = "queue:"

// Op is the kind of mutation an item carries.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Item is one queued mutation.
type Item struct {
	ID         string            `json:"id"`
	Op         Op                `json:"op"`
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`

	seq int64 // assigned at enqueue, orders replay
}

func (it Item) key() string {
	return fmt.Sprintf("%s%020d:%s", keyPrefix, it.seq, it.ID)
}

// Sender replays a queued request. *transport.Client satisfies it.
type Sender interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Notifier surfaces queue events to the user. Level is "info", "warn" or
// "error".
type Notifier interface {
	Notify(level, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(level, message string)

func (f NotifierFunc) Notify(level, message string) { f(level, message) }

// ShouldQueue reports whether a mutation failure is connectivity-class, i.e.
// the write itself was fine and should be preserved for replay.
func ShouldQueue(err error) bool {
	ce := apierr.Classify(err, nil)
	if ce == nil {
		return false
	}
	switch ce.Code {
	case apierr.CodeTimeout, apierr.CodeNetwork, apierr.CodeOffline:
		return true
	}
	return ce.Category == apierr.CategoryNetwork
}

// Summary aggregates one replay pass.
type Summary struct {
	Attempted int
	Completed int
	Requeued  int
	Abandoned int
}

// Queue is the persistent offline write queue. Safe for concurrent use; at
// most one replay pass runs at a time.
type Queue struct {
	store      *kvstore.Store
	sender     Sender
	notifier   Notifier
	maxRetries int

	draining atomic.Bool
	seq      atomic.Int64

	mu            sync.Mutex
	sizeListeners map[int]func(int)
	nextListener  int
	wasOnline     bool
}

// Options configures a Queue.
type Options struct {
	Store      *kvstore.Store
	Sender     Sender
	Notifier   Notifier // optional
	MaxRetries int      // default 3
}

// New creates a Queue on top of the shared KV store.
func New(o Options) *Queue {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	q := &Queue{
		store:         o.Store,
		sender:        o.Sender,
		notifier:      o.Notifier,
		maxRetries:    o.MaxRetries,
		sizeListeners: make(map[int]func(int)),
		wasOnline:     true,
	}
	q.seq.Store(time.Now().UnixNano())
	return q
}

// Enqueue persists a mutation for later replay. ID, EnqueuedAt and MaxRetries
// are filled in when unset. Size listeners fire and the user gets a notice.
func (q *Queue) Enqueue(item Item) (Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	if item.MaxRetries <= 0 {
		item.MaxRetries = q.maxRetries
	}
	item.seq = q.seq.Add(1)

	if err := q.store.Set(item.key(), item, 0); err != nil {
		return Item{}, fmt.Errorf("failed to enqueue %s %s: %w", item.Method, item.Endpoint, err)
	}
	logging.Offline("queued %s %s %s (id=%s)", item.Op, item.Method, item.Endpoint, item.ID)

	q.notifySize()
	q.notify("info", fmt.Sprintf("You're offline. Saved %s for later.", item.describe()))
	return item, nil
}

func (it Item) describe() string {
	return fmt.Sprintf("%s %s", it.Op, it.Endpoint)
}

// Items returns the queued items in replay order.
func (q *Queue) Items() ([]Item, error) {
	keys, err := q.store.Keys(keyPrefix)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		var it Item
		ok, err := q.store.Get(k, &it)
		if err != nil {
			return nil, err
		}
		if ok {
			it.seq = seqFromKey(k)
			items = append(items, it)
		}
	}
	return items, nil
}

// Size returns the number of queued items.
func (q *Queue) Size() (int, error) {
	keys, err := q.store.Keys(keyPrefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Clear drops every queued item without replaying it.
func (q *Queue) Clear() error {
	if err := q.store.Clear(keyPrefix); err != nil {
		return err
	}
	q.notifySize()
	return nil
}

// AddSizeListener registers fn to run with the new queue size after every
// enqueue, completion, abandonment or clear. Returns an unsubscribe function.
func (q *Queue) AddSizeListener(fn func(int)) func() {
	q.mu.Lock()
	id := q.nextListener
	q.nextListener++
	q.sizeListeners[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.sizeListeners, id)
		q.mu.Unlock()
	}
}

// AttachMonitor drains the queue whenever the monitor reports an
// offline-to-online transition. Returns the listener's unsubscribe function.
func (q *Queue) AttachMonitor(ctx context.Context, m *netmon.Monitor) func() {
	q.mu.Lock()
	q.wasOnline = m.IsOnline()
	q.mu.Unlock()

	return m.AddListener(func(s netmon.Status) {
		q.mu.Lock()
		cameOnline := s.IsOnline && !q.wasOnline
		q.wasOnline = s.IsOnline
		q.mu.Unlock()

		if !cameOnline {
			return
		}
		// The monitor calls listeners synchronously; replay must not block
		// its probe loop.
		go func() {
			if _, err := q.Process(ctx); err != nil {
				logging.OfflineWarn("replay pass failed: %v", err)
			}
		}()
	})
}

// Process replays queued items strictly in enqueue order. Only one pass runs
// at a time; a call while another pass is active returns immediately with an
// empty summary. Every item ends the pass queued, completed, or abandoned.
func (q *Queue) Process(ctx context.Context) (Summary, error) {
	if !q.draining.CompareAndSwap(false, true) {
		logging.Offline("replay already in progress, skipping")
		return Summary{}, nil
	}
	defer q.draining.Store(false)

	items, err := q.Items()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load queue: %w", err)
	}
	if len(items) == 0 {
		return Summary{}, nil
	}
	logging.Offline("replaying %d queued items", len(items))

	var sum Summary
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			// Remaining items stay queued for the next pass.
			break
		}
		sum.Attempted++
		switch q.replay(ctx, it) {
		case replayCompleted:
			sum.Completed++
		case replayRequeued:
			sum.Requeued++
		case replayAbandoned:
			sum.Abandoned++
		}
	}

	q.notifySize()
	q.report(sum)
	return sum, nil
}

type replayOutcome int

const (
	replayCompleted replayOutcome = iota
	replayRequeued
	replayAbandoned
)

func (q *Queue) replay(ctx context.Context, it Item) replayOutcome {
	req := &transport.Request{
		Method:       it.Method,
		Path:         it.Endpoint,
		Headers:      it.Headers,
		MutationSafe: true,
	}
	if len(it.Payload) > 0 {
		req.RawBody = it.Payload
		req.RawType = "application/json"
	}

	_, err := q.sender.Do(ctx, req)
	if err == nil {
		if rmErr := q.store.Remove(it.key()); rmErr != nil {
			logging.OfflineWarn("failed to remove completed item %s: %v", it.ID, rmErr)
		}
		logging.Offline("replayed %s (id=%s)", it.describe(), it.ID)
		return replayCompleted
	}

	classified := apierr.Classify(err, map[string]any{"queueItem": it.ID})
	it.RetryCount++

	// A mutation the server will always reject gains nothing from retries.
	if !classified.Retryable || it.RetryCount > it.MaxRetries {
		if rmErr := q.store.Remove(it.key()); rmErr != nil {
			logging.OfflineWarn("failed to remove abandoned item %s: %v", it.ID, rmErr)
		}
		dropped := apierr.New(apierr.CodeQueueAbandoned, apierr.CategoryBusiness, apierr.SeverityHigh, false,
			fmt.Sprintf("could not sync %s after %d attempt(s): %s", it.describe(), it.RetryCount, classified.Message))
		dropped.Err = classified
		logging.OfflineWarn("%v", dropped)
		q.notify("error", dropped.Message)
		return replayAbandoned
	}

	if err := q.store.Set(it.key(), it, 0); err != nil {
		logging.OfflineWarn("failed to requeue item %s: %v", it.ID, err)
	}
	logging.Offline("requeued %s (attempt %d/%d): %v", it.describe(), it.RetryCount, it.MaxRetries, classified)
	return replayRequeued
}

func (q *Queue) report(sum Summary) {
	if sum.Attempted == 0 {
		return
	}
	logging.Offline("replay pass done: %d completed, %d requeued, %d abandoned",
		sum.Completed, sum.Requeued, sum.Abandoned)
	switch {
	case sum.Abandoned > 0:
		q.notify("warn", fmt.Sprintf("Synced %d change(s); %d could not be saved.", sum.Completed, sum.Abandoned))
	case sum.Completed > 0:
		q.notify("info", fmt.Sprintf("Back online. Synced %d change(s).", sum.Completed))
	}
}

func (q *Queue) notify(level, msg string) {
	if q.notifier != nil {
		q.notifier.Notify(level, msg)
	}
}

func (q *Queue) notifySize() {
	n, err := q.Size()
	if err != nil {
		logging.OfflineWarn("failed to read queue size: %v", err)
		return
	}
	q.mu.Lock()
	fns := make([]func(int), 0, len(q.sizeListeners))
	for _, fn := range q.sizeListeners {
		fns = append(fns, fn)
	}
	q.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

func seqFromKey(key string) int64 {
	var seq int64
	var id string
	fmt.Sscanf(key, keyPrefix+"%d:%s", &seq, &id)
	return seq
}
