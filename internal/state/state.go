// Package state persists the small amount of process-wide sync state:
// the continuation token, the last successful sync time, the
// sync-enabled toggle, and the last recorded error.
//
// The engine only needs get/set/clear semantics, so the storage is a
// key-value port the embedding application can swap (keychain, user
// defaults, a settings table). Two implementations ship here: a JSON
// file written atomically, and an in-memory map for tests.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// KV is the byte-oriented persistence port.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	// Set stores the value under key, replacing any previous value.
	Set(key string, value []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key string) error
}

// Keys used by the sync engine. The values are single-writer: only the
// coordinator mutates them, and only after a fully successful run.
const (
	keyToken       = "continuationToken"
	keyLastSync    = "lastSyncDate"
	keySyncEnabled = "syncEnabled"
	keyLastError   = "lastError"
)

// Store wraps a KV with typed accessors for the engine's state.
type Store struct {
	kv KV
}

// NewStore creates a typed state store over the given KV port.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Token returns the persisted continuation token, or "" when none.
func (s *Store) Token() (string, error) {
	v, ok, err := s.kv.Get(keyToken)
	if err != nil || !ok {
		return "", err
	}
	return string(v), nil
}

// SetToken persists a new continuation token.
func (s *Store) SetToken(token string) error {
	return s.kv.Set(keyToken, []byte(token))
}

// ClearToken forgets the continuation token, forcing the next fetch to
// be a full resync. Must be called whenever the zone is deleted.
func (s *Store) ClearToken() error {
	return s.kv.Delete(keyToken)
}

// LastSync returns the time of the last fully successful sync.
func (s *Store) LastSync() (time.Time, bool, error) {
	v, ok, err := s.kv.Get(keyLastSync)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, perr := time.Parse(time.RFC3339Nano, string(v))
	if perr != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// SetLastSync records the completion time of a successful sync.
func (s *Store) SetLastSync(t time.Time) error {
	return s.kv.Set(keyLastSync, []byte(t.UTC().Format(time.RFC3339Nano)))
}

// SyncEnabled reports whether sync is enabled. Defaults to true when
// the flag has never been set.
func (s *Store) SyncEnabled() (bool, error) {
	v, ok, err := s.kv.Get(keySyncEnabled)
	if err != nil || !ok {
		return true, err
	}
	enabled, perr := strconv.ParseBool(string(v))
	if perr != nil {
		return true, nil
	}
	return enabled, nil
}

// SetSyncEnabled toggles all sync activity.
func (s *Store) SetSyncEnabled(enabled bool) error {
	return s.kv.Set(keySyncEnabled, []byte(strconv.FormatBool(enabled)))
}

// LastError returns the most recent sync failure message, if any.
func (s *Store) LastError() (string, error) {
	v, _, err := s.kv.Get(keyLastError)
	return string(v), err
}

// SetLastError records a sync failure for observability.
func (s *Store) SetLastError(msg string) error {
	return s.kv.Set(keyLastError, []byte(msg))
}

// ClearLastError removes the recorded failure after a successful run.
func (s *Store) ClearLastError() error {
	return s.kv.Delete(keyLastError)
}

// FileKV is a KV persisted as a single JSON file. Every mutation
// rewrites the file atomically (temp file + rename).
type FileKV struct {
	path string

	mu     sync.Mutex
	values map[string][]byte
}

// OpenFile loads (or creates) a file-backed KV at path.
func OpenFile(path string) (*FileKV, error) {
	kv := &FileKV{
		path:   path,
		values: make(map[string][]byte),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return kv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &kv.values); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}

	return kv, nil
}

// Get implements KV.Get.
func (f *FileKV) Get(key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements KV.Set.
func (f *FileKV) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	f.values[key] = stored
	return f.save()
}

// Delete implements KV.Delete.
func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.save()
}

// save writes the map to disk. Caller holds the lock.
func (f *FileKV) save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// MemKV is an in-memory KV for tests.
type MemKV struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemKV creates an empty in-memory KV.
func NewMemKV() *MemKV {
	return &MemKV{values: make(map[string][]byte)}
}

// Get implements KV.Get.
func (m *MemKV) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements KV.Set.
func (m *MemKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Delete implements KV.Delete.
func (m *MemKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
