package kvstore

import (
	"path/filepath"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newStore(t)

	type doc struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	if err := s.Set("api:/documents/doc-1", doc{ID: "doc-1", Title: "Q3 Report"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got doc
	ok, err := s.Get("api:/documents/doc-1", &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist")
	}
	if got.ID != "doc-1" || got.Title != "Q3 Report" {
		t.Errorf("got %+v", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := newStore(t)

	var out string
	ok, err := s.Get("nope", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected missing key")
	}
}

func TestTTLExpiry(t *testing.T) {
	s := newStore(t)

	if err := s.Set("api:ephemeral", "v", 30*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err := s.Has("api:ephemeral")
	if err != nil || !ok {
		t.Fatalf("expected fresh key, ok=%v err=%v", ok, err)
	}

	time.Sleep(60 * time.Millisecond)

	ok, err = s.Has("api:ephemeral")
	if err != nil {
		t.Fatalf("Has after expiry: %v", err)
	}
	if ok {
		t.Error("expected expired key to be absent")
	}

	// Lazy purge removed the row entirely.
	keys, err := s.Keys("api:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestOverwriteResetsTTL(t *testing.T) {
	s := newStore(t)

	if err := s.Set("k", 1, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", 2, 0); err != nil {
		t.Fatal(err)
	}

	time.Sleep(40 * time.Millisecond)

	var v int
	ok, err := s.Get("k", &v)
	if err != nil || !ok {
		t.Fatalf("expected key to survive, ok=%v err=%v", ok, err)
	}
	if v != 2 {
		t.Errorf("got %d, want 2", v)
	}
}

func TestRemove(t *testing.T) {
	s := newStore(t)

	s.Set("k", "v", 0)
	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := s.Has("k"); ok {
		t.Error("expected key removed")
	}
	// Removing twice is fine.
	if err := s.Remove("k"); err != nil {
		t.Errorf("Remove absent key: %v", err)
	}
}

func TestKeysPrefixAndClear(t *testing.T) {
	s := newStore(t)

	s.Set("api:/documents", "a", 0)
	s.Set("api:/collections", "b", 0)
	s.Set("queue:item-1", "c", 0)
	s.Set("user:prefs", "d", 0)

	keys, err := s.Keys("api:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 api keys, got %v", keys)
	}
	if keys[0] != "api:/collections" || keys[1] != "api:/documents" {
		t.Errorf("unexpected order: %v", keys)
	}

	if err := s.Clear("api:"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	keys, _ = s.Keys("api:")
	if len(keys) != 0 {
		t.Errorf("expected api namespace cleared, got %v", keys)
	}
	if ok, _ := s.Has("queue:item-1"); !ok {
		t.Error("clear must not touch other namespaces")
	}
}

func TestClearAll(t *testing.T) {
	s := newStore(t)

	s.Set("a", 1, 0)
	s.Set("b", 2, 0)
	if err := s.Clear(""); err != nil {
		t.Fatalf("Clear all: %v", err)
	}
	keys, _ := s.Keys("")
	if len(keys) != 0 {
		t.Errorf("expected empty store, got %v", keys)
	}
}

func TestPurgeExpired(t *testing.T) {
	s := newStore(t)

	s.Set("live", 1, 0)
	s.Set("dead-1", 1, time.Millisecond)
	s.Set("dead-2", 1, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	n, err := s.PurgeExpired()
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
	if ok, _ := s.Has("live"); !ok {
		t.Error("live key must survive purge")
	}
}

func TestLikePatternEscaping(t *testing.T) {
	s := newStore(t)

	s.Set("pre%fix:a", 1, 0)
	s.Set("preXfix:b", 1, 0)

	keys, err := s.Keys("pre%fix:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "pre%fix:a" {
		t.Errorf("LIKE metacharacters must be escaped, got %v", keys)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("queue:item-1", map[string]string{"op": "create"}, 0); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	var v map[string]string
	ok, err := s2.Get("queue:item-1", &v)
	if err != nil || !ok {
		t.Fatalf("expected persisted key, ok=%v err=%v", ok, err)
	}
	if v["op"] != "create" {
		t.Errorf("got %v", v)
	}
}
