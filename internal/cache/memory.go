package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultMaxEntries bounds a MemoryStore built without an explicit size.
	DefaultMaxEntries = 10000
	// sweepInterval is the minimum gap between full scans for expired
	// entries. Scans piggyback on Set.
	sweepInterval = time.Minute
)

type memoryEntry struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// MemoryStore keeps JSON-encoded entries in process memory. Values are
// decoded into fresh copies on every Get, so callers cannot mutate what
// another caller reads. The store holds at most its configured number of
// entries, evicting the least recently used, and expired entries are swept
// out at most once per minute as writes arrive.
type MemoryStore struct {
	mu        sync.Mutex
	entries   *simplelru.LRU[string, memoryEntry]
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore constructs an empty store holding up to DefaultMaxEntries.
// A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	return NewBoundedMemoryStore(now, DefaultMaxEntries)
}

// NewBoundedMemoryStore constructs an empty store holding up to maxEntries.
// Non-positive sizes use DefaultMaxEntries.
func NewBoundedMemoryStore(now func() time.Time, maxEntries int) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	// NewLRU only fails for a non-positive size.
	entries, _ := simplelru.NewLRU[string, memoryEntry](maxEntries, nil)
	return &MemoryStore{entries: entries, now: now}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string, dst any) (bool, error) {
	if m == nil || key == "" {
		return false, nil
	}
	m.mu.Lock()
	entry, ok := m.entries.Get(key)
	if ok && !m.now().Before(entry.ExpiresAt) {
		m.entries.Remove(key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.Data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Store. Non-positive TTLs are ignored.
func (m *MemoryStore) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	if m == nil || key == "" || ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.lastSweep) >= sweepInterval {
		m.sweepLocked(now)
	}
	m.entries.Add(key, memoryEntry{Data: data, ExpiresAt: now.Add(ttl)})
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.entries.Remove(key)
	m.mu.Unlock()
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.entries.Purge()
	m.mu.Unlock()
	return nil
}

// Len returns the number of live entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.liveLocked(m.now()))
}

// Retained returns the number of entries held, expired or not.
func (m *MemoryStore) Retained() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Snapshot writes all live entries as JSON so they can be persisted by the
// surrounding application.
func (m *MemoryStore) Snapshot(w io.Writer) error {
	m.mu.Lock()
	live := m.liveLocked(m.now())
	m.mu.Unlock()
	if err := json.NewEncoder(w).Encode(live); err != nil {
		return fmt.Errorf("snapshot cache: %w", err)
	}
	return nil
}

// Restore loads entries written by Snapshot. Entries that expired in the
// meantime are dropped; restored entries overwrite existing keys.
func (m *MemoryStore) Restore(r io.Reader) error {
	var loaded map[string]memoryEntry
	if err := json.NewDecoder(r).Decode(&loaded); err != nil {
		return fmt.Errorf("restore cache: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range loaded {
		if now.Before(e.ExpiresAt) {
			m.entries.Add(k, e)
		}
	}
	return nil
}

func (m *MemoryStore) liveLocked(now time.Time) map[string]memoryEntry {
	live := make(map[string]memoryEntry, m.entries.Len())
	for _, k := range m.entries.Keys() {
		if e, ok := m.entries.Peek(k); ok && now.Before(e.ExpiresAt) {
			live[k] = e
		}
	}
	return live
}

func (m *MemoryStore) sweepLocked(now time.Time) {
	m.lastSweep = now
	for _, k := range m.entries.Keys() {
		if e, ok := m.entries.Peek(k); ok && !now.Before(e.ExpiresAt) {
			m.entries.Remove(k)
		}
	}
}
