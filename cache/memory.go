// Package cache provides concrete CacheRepository implementations: an
// in-process bounded TTL store and a Redis-backed store for shared
// deployments.
package cache

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds the in-memory cache when the caller passes 0.
const DefaultMaxEntries = 128

// Memory is an in-process byte cache with per-entry TTL and a bounded
// entry count. Eviction is strictly by insertion order: when the bound
// would be exceeded, the oldest inserted key is removed no matter how
// recently it was read. Re-setting an existing key keeps its original
// position.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	order   []string
	max     int
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates a Memory cache holding at most maxEntries values.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		entries: make(map[string]*memoryEntry),
		order:   make([]string, 0, maxEntries),
		max:     maxEntries,
		now:     time.Now,
	}
}

// SetNowForTest replaces the clock so tests can cross TTL boundaries
// without sleeping.
func (m *Memory) SetNowForTest(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get returns a copy of the stored value while it is still fresh.
// Expired entries are dropped on access.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		m.removeLocked(key)
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set stores a copy of value under key for the given expiration window.
func (m *Memory) Set(key string, value []byte, expiration time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		// existing key keeps its insertion position
		e.value = stored
		e.expiresAt = m.now().Add(expiration)
		return
	}
	if len(m.order) >= m.max {
		m.removeLocked(m.order[0])
	}
	m.entries[key] = &memoryEntry{value: stored, expiresAt: m.now().Add(expiration)}
	m.order = append(m.order, key)
}

// Delete removes key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
	m.order = m.order[:0]
}

// Len reports the number of stored entries, including any not yet swept
// expired ones.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) removeLocked(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
