// SPDX-License-Identifier: MIT

// Package cache caches computed run summaries and fit results. Values are
// pre-encoded JSON so the memory and Redis backends behave identically.
package cache

import (
	"sync"
	"time"
)

// Cache provides thread-safe caching with expiration support.
type Cache interface {
	// Get retrieves a value. Returns false if absent or expired.
	Get(key string) ([]byte, bool)
	// Set stores a value with the given TTL.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes a single key.
	Delete(key string)
	// Clear removes all values.
	Clear()
	// Stats returns cache statistics.
	Stats() Stats
	// Close releases backend resources.
	Close() error
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiration)
}

// defaultMaxEntries bounds the memory backend. Summaries and fits are a few
// hundred bytes each, so this caps the cache at low single-digit megabytes.
const defaultMaxEntries = 4096

// memoryCache is the in-process Cache implementation.
type memoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxEntries int
	stats      Stats

	janitorStop chan struct{}
	janitorOnce sync.Once
}

// NewMemory creates an in-memory cache. A background janitor removes expired
// entries every cleanupInterval; pass 0 to disable it. The cache holds at
// most defaultMaxEntries entries; inserts beyond that evict the entry
// closest to expiry.
func NewMemory(cleanupInterval time.Duration) Cache {
	c := &memoryCache{
		entries:     make(map[string]*entry),
		maxEntries:  defaultMaxEntries,
		janitorStop: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.expired() {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOne()
	}
	c.entries[key] = &entry{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
	c.stats.Sets++
}

// evictOne drops an expired entry when one exists, otherwise the entry
// closest to expiry. With a uniform TTL that is the least recently written
// entry. Caller holds the lock.
func (c *memoryCache) evictOne() {
	var victim string
	var victimExp time.Time
	for key, e := range c.entries {
		if e.expired() {
			victim = key
			break
		}
		if victim == "" || e.expiration.Before(victimExp) {
			victim, victimExp = key, e.expiration
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.stats.Evictions++
	}
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *memoryCache) Close() error {
	c.janitorOnce.Do(func() { close(c.janitorStop) })
	return nil
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.janitorStop:
			return
		}
	}
}

func (c *memoryCache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.expired() {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}
