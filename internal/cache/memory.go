package cache

import (
	"path"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a process-local store of encoded values. Entries are kept
// as bytes so callers never share mutable state through the cache.
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		items:      make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *MemoryCache) Set(key string, data []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists && len(m.items) >= m.maxEntries {
		m.evictLocked()
	}

	entry := memoryEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = entry
}

func (m *MemoryCache) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if m.expired(entry) {
		m.Delete(key)
		return nil, false
	}
	return entry.data, true
}

func (m *MemoryCache) Delete(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

// DeletePattern removes keys matching a glob pattern and returns how many
// were dropped.
func (m *MemoryCache) DeletePattern(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryCache) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeExpiredLocked()
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryCache) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"entries":     len(m.items),
		"max_entries": m.maxEntries,
	}
}

func (m *MemoryCache) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt)
}

func (m *MemoryCache) purgeExpiredLocked() int {
	removed := 0
	for key, entry := range m.items {
		if m.expired(entry) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

// evictLocked frees at least one slot, preferring expired entries and
// otherwise dropping the entry closest to expiry.
func (m *MemoryCache) evictLocked() {
	if m.purgeExpiredLocked() > 0 {
		return
	}

	var victim string
	var soonest time.Time
	for key, entry := range m.items {
		if victim == "" || (!entry.expiresAt.IsZero() && (soonest.IsZero() || entry.expiresAt.Before(soonest))) {
			victim, soonest = key, entry.expiresAt
		}
	}
	delete(m.items, victim)
}
