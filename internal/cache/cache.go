// Package cache implements the observable query cache behind the data access
// layer: composite keys per resource family, staleness and GC windows,
// stale-while-revalidate reads, targeted invalidation after writes, and
// de-duplication of concurrent identical fetches.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"docdash/internal/logging"

	"golang.org/x/sync/singleflight"
)

// Key addresses a cache entry: resource family plus identifying parts
// (resource id or canonicalized query parameters).
type Key struct {
	Family string
	Parts  []string
}

// NewKey builds a key from a family and parts.
func NewKey(family string, parts ...string) Key {
	return Key{Family: family, Parts: parts}
}

// String returns the canonical form used for lookup and de-duplication.
func (k Key) String() string {
	if len(k.Parts) == 0 {
		return k.Family
	}
	return k.Family + "/" + strings.Join(k.Parts, "/")
}

// Policy controls an entry's lifetime.
type Policy struct {
	StaleAfter time.Duration // serve-without-fetch window
	GCAfter    time.Duration // evict entirely after this
}

// EventType tags a change notification.
type EventType string

const (
	EventUpdated     EventType = "updated"
	EventInvalidated EventType = "invalidated"
)

// Event notifies subscribers that an entry changed.
type Event struct {
	Key  Key
	Type EventType
}

type entry struct {
	key       Key
	value     any
	fetchedAt time.Time
	policy    Policy
}

func (e *entry) fresh(now time.Time) bool {
	return now.Sub(e.fetchedAt) < e.policy.StaleAfter
}

func (e *entry) expired(now time.Time) bool {
	gc := e.policy.GCAfter
	if gc <= 0 {
		gc = 5 * time.Minute
	}
	return now.Sub(e.fetchedAt) >= gc
}

type subscriber struct {
	family string // empty matches every family
	ch     chan Event
}

// Store is the in-memory observable cache. Entries are owned by the data
// access layer; callers outside it only trigger refetch or invalidation.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	subs    map[int]*subscriber
	nextSub int

	group singleflight.Group

	gcStop chan struct{}
	gcDone chan struct{}
}

// NewStore creates a cache store. gcInterval > 0 starts a background sweep;
// call Close to stop it.
func NewStore(gcInterval time.Duration) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		subs:    make(map[int]*subscriber),
	}
	if gcInterval > 0 {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.gcLoop(gcInterval)
	}
	return s
}

// Close stops the GC sweep. Safe to call on stores created without one.
func (s *Store) Close() {
	if s.gcStop == nil {
		return
	}
	select {
	case <-s.gcStop:
	default:
		close(s.gcStop)
		<-s.gcDone
	}
}

func (s *Store) gcLoop(interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := time.Now()
	s.mu.Lock()
	var evicted int
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			evicted++
		}
	}
	s.mu.Unlock()
	if evicted > 0 {
		logging.CacheDebug("gc evicted %d entries", evicted)
	}
}

// Query returns the cached value for key if fresh; otherwise it fetches.
// A stale entry is served if the fetch fails (stale-while-revalidate); with
// no stale entry the classified error propagates. Concurrent queries for the
// same key share one in-flight fetch.
func Query[T any](ctx context.Context, s *Store, key Key, policy Policy, fetch func(context.Context) (T, error)) (T, error) {
	ks := key.String()
	now := time.Now()

	s.mu.RLock()
	e, ok := s.entries[ks]
	s.mu.RUnlock()

	if ok && e.fresh(now) {
		logging.CacheDebug("hit %s", ks)
		return e.value.(T), nil
	}

	v, err, shared := s.group.Do(ks, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		// Store inside the flight: one fetch stores and notifies exactly once,
		// regardless of how many callers coalesced onto it.
		s.set(key, v, policy)
		return v, nil
	})
	if shared {
		logging.CacheDebug("coalesced fetch for %s", ks)
	}

	if err != nil {
		if ok {
			// Keep the stale value visible rather than failing the read.
			logging.Cache("revalidation of %s failed, serving stale: %v", ks, err)
			return e.value.(T), nil
		}
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Mutate runs a write and, on success, applies the explicit invalidation
// rule. Failures pass through untouched; the transport never retries a write
// whose outcome is ambiguous, and neither does the cache.
func Mutate[T any](ctx context.Context, s *Store, write func(context.Context) (T, error), invalidate func(*Store, T)) (T, error) {
	v, err := write(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if invalidate != nil {
		invalidate(s, v)
	}
	return v, nil
}

// Seed stores a value directly, used to prime a detail entry from a
// mutation's response body.
func (s *Store) Seed(key Key, value any, policy Policy) {
	s.set(key, value, policy)
}

func (s *Store) set(key Key, value any, policy Policy) {
	s.mu.Lock()
	s.entries[key.String()] = &entry{
		key:       key,
		value:     value,
		fetchedAt: time.Now(),
		policy:    policy,
	}
	s.mu.Unlock()
	s.notify(Event{Key: key, Type: EventUpdated})
}

// Peek returns the cached value without fetching, along with whether it was
// present and whether it was still fresh.
func Peek[T any](s *Store, key Key) (value T, present, fresh bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key.String()]
	if !ok {
		return
	}
	return e.value.(T), true, e.fresh(time.Now())
}

// Invalidate removes a single entry.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	_, existed := s.entries[key.String()]
	delete(s.entries, key.String())
	s.mu.Unlock()
	if existed {
		s.notify(Event{Key: key, Type: EventInvalidated})
	}
}

// InvalidateFamily removes every entry in a resource family.
func (s *Store) InvalidateFamily(family string) {
	s.InvalidateFunc(func(k Key) bool { return k.Family == family })
}

// InvalidateFunc removes every entry whose key matches pred.
func (s *Store) InvalidateFunc(pred func(Key) bool) {
	s.mu.Lock()
	var removed []Key
	for ks, e := range s.entries {
		if pred(e.key) {
			delete(s.entries, ks)
			removed = append(removed, e.key)
		}
	}
	s.mu.Unlock()
	for _, k := range removed {
		s.notify(Event{Key: k, Type: EventInvalidated})
	}
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe returns a channel of change events for a family ("" for all) and
// an unsubscribe function. Slow consumers drop events rather than blocking
// cache writes.
func (s *Store) Subscribe(family string) (<-chan Event, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	sub := &subscriber{family: family, ch: make(chan Event, 16)}
	s.subs[id] = sub
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if cur, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(cur.ch)
		}
		s.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.family != "" && sub.family != ev.Key.Family {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
