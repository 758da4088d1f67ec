// Package kvstore implements the durable key-value store backing cached API
// responses, per-user data, and the offline write queue. Values are JSON
// blobs in a single SQLite table; entries past their TTL are treated as
// absent on Get and lazily purged.
//
// Key namespaces share one store: "api:" for cached responses, "user:" for
// per-user data, "queue:" for offline queue items.
package kvstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"docdash/internal/logging"

	_ "modernc.org/sqlite"
)

// Store is a durable KV store on SQLite. Safe for concurrent use; writes are
// serialized through a single connection.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path. ":memory:" works
// for tests.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "kvstore.Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("kvstore ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		expires_at INTEGER,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Set stores value under key, JSON-encoded. A ttl of zero means no expiry.
func (s *Store) Set(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %q: %w", key, err)
	}

	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().Add(ttl).UnixMilli(), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO kv (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		key, data, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Get loads the value under key into out. Returns false if the key is absent
// or expired; expired rows are purged on the way out.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	var (
		data      []byte
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRow(`SELECT value, expires_at FROM kv WHERE key = ?`, key).
		Scan(&data, &expiresAt)
	s.mu.RUnlock()

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %q: %w", key, err)
	}

	if expiresAt.Valid && expiresAt.Int64 <= time.Now().UnixMilli() {
		// Lazy purge of expired entries.
		if err := s.Remove(key); err != nil {
			logging.StoreDebug("lazy purge of %q failed: %v", key, err)
		}
		return false, nil
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("failed to unmarshal %q: %w", key, err)
		}
	}
	return true, nil
}

// Has reports whether key exists and is unexpired.
func (s *Store) Has(key string) (bool, error) {
	return s.Get(key, nil)
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Clear removes every key with the given prefix; an empty prefix clears the
// whole store.
func (s *Store) Clear(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if prefix == "" {
		_, err = s.db.Exec(`DELETE FROM kv`)
	} else {
		_, err = s.db.Exec(`DELETE FROM kv WHERE key LIKE ? ESCAPE '\'`, likePattern(prefix))
	}
	if err != nil {
		return fmt.Errorf("failed to clear prefix %q: %w", prefix, err)
	}
	return nil
}

// Keys returns unexpired keys with the given prefix, in key order.
func (s *Store) Keys(prefix string) ([]string, error) {
	now := time.Now().UnixMilli()

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`
		SELECT key FROM kv
		WHERE key LIKE ? ESCAPE '\'
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key`,
		likePattern(prefix), now)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PurgeExpired removes all expired rows and returns how many were deleted.
// Get already hides expired entries; this is periodic maintenance.
func (s *Store) PurgeExpired() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired keys: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.StoreDebug("purged %d expired entries", n)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// likePattern escapes LIKE metacharacters in prefix and appends the wildcard.
func likePattern(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+4)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped) + "%"
}
