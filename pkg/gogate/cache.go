package gogate

import (
	"sync"
	"time"
)

// Cache defines the interface for caching access records to reduce record
// store load. The guard can serve a record up to the configured TTL stale;
// writes from the login flow and webhook handler invalidate eagerly.
type Cache interface {
	// GetRecord retrieves a cached record.
	// Returns the record and true if found, nil and false otherwise.
	GetRecord(accountID string) (*AccessRecord, bool)

	// SetRecord stores a record in the cache with TTL.
	SetRecord(accountID string, rec *AccessRecord, ttl time.Duration)

	// InvalidateRecord removes a record from the cache.
	InvalidateRecord(accountID string)

	// Clear removes all entries from the cache.
	Clear()

	// Stats returns cache statistics.
	Stats() CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// cacheEntry wraps a cached record with expiration time and access time for LRU
type cacheEntry struct {
	record     *AccessRecord
	expiration time.Time
	accessTime time.Time
	sequence   int64 // tiebreaker when access times are equal
}

func (e *cacheEntry) isExpired() bool {
	return time.Now().After(e.expiration)
}

// NoopCache is a cache implementation that does nothing.
// Used when caching is disabled.
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) GetRecord(_ string) (*AccessRecord, bool) { return nil, false }

func (c *NoopCache) SetRecord(_ string, _ *AccessRecord, _ time.Duration) {}

func (c *NoopCache) InvalidateRecord(_ string) {}

func (c *NoopCache) Clear() {}

func (c *NoopCache) Stats() CacheStats { return CacheStats{} }

// LRUCache implements Cache using an in-memory LRU cache with TTL support
type LRUCache struct {
	records    map[string]*cacheEntry
	maxRecords int
	mu         sync.Mutex
	hits       int64
	misses     int64
	evictions  int64
	sequence   int64
}

// NewLRUCache creates a new LRU cache with the specified maximum size
func NewLRUCache(maxRecords int) *LRUCache {
	if maxRecords <= 0 {
		maxRecords = 10000 // default
	}

	return &LRUCache{
		records:    make(map[string]*cacheEntry, maxRecords),
		maxRecords: maxRecords,
	}
}

func (c *LRUCache) GetRecord(accountID string) (*AccessRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.records[accountID]
	if !exists || entry.isExpired() {
		c.misses++
		return nil, false
	}

	entry.accessTime = time.Now()
	c.hits++

	// Return a copy to prevent external modifications
	rec := *entry.record
	return &rec, true
}

func (c *LRUCache) SetRecord(accountID string, rec *AccessRecord, ttl time.Duration) {
	if rec == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	_, exists := c.records[accountID]

	// Evict least recently used if at capacity and entry doesn't exist
	if len(c.records) >= c.maxRecords && !exists {
		var oldestKey string
		var oldestTime time.Time
		var oldestSeq int64
		first := true
		for key, entry := range c.records {
			if first || entry.accessTime.Before(oldestTime) ||
				(entry.accessTime.Equal(oldestTime) && entry.sequence < oldestSeq) {
				oldestKey = key
				oldestTime = entry.accessTime
				oldestSeq = entry.sequence
				first = false
			}
		}
		if oldestKey != "" {
			delete(c.records, oldestKey)
			c.evictions++
		}
	}

	recCopy := *rec
	seq := c.sequence
	c.sequence++
	c.records[accountID] = &cacheEntry{
		record:     &recCopy,
		expiration: now.Add(ttl),
		accessTime: now,
		sequence:   seq,
	}
}

func (c *LRUCache) InvalidateRecord(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, accountID)
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]*cacheEntry, c.maxRecords)
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.records),
	}
}
