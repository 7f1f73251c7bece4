// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package tilecache is a per-array LRU over decoded tile buffers, keyed by
// (fragment, tile, attribute) with a byte budget and a pinned-while-
// iterating eviction rule. Modeled on cache.go's LRUCache: wraps
// golang/groupcache/lru plus an auxiliary map for bookkeeping the base
// cache doesn't track on its own — here, pin counts instead of a `keys`
// presence set.
package tilecache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Key identifies one decoded tile buffer.
type Key struct {
	FragmentID string
	TileID     uint64
	AttrID     int
}

type entry struct {
	data []byte
	size int
}

// Cache is a byte-budgeted LRU. A tile that is Pinned is held in a side map
// outside the LRU's eviction order and can never be chosen by RemoveOldest
// until it is fully Unpinned.
type Cache struct {
	mu     sync.Mutex
	lru    *lru.Cache
	pinned map[Key]*entry
	pins   map[Key]int
	bytes  int
	budget int
}

// New returns a Cache with the given byte budget.
func New(budgetBytes int) *Cache {
	c := &Cache{
		lru:    lru.New(0), // 0: unbounded by entry count, bounded by bytes instead
		pinned: map[Key]*entry{},
		pins:   map[Key]int{},
		budget: budgetBytes,
	}
	c.lru.OnEvicted = func(key lru.Key, value interface{}) {
		c.bytes -= value.(*entry).size
	}
	return c
}

// Get returns the cached buffer for key, if present.
func (c *Cache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.pinned[key]; ok {
		return e.data, true
	}
	if v, ok := c.lru.Get(key); ok {
		return v.(*entry).data, true
	}
	return nil, false
}

// Put inserts or replaces the buffer for key, evicting unpinned entries
// (oldest first) until the cache fits its byte budget.
func (c *Cache) Put(key Key, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)

	e := &entry{data: data, size: len(data)}
	if c.pins[key] > 0 {
		c.pinned[key] = e
		c.bytes += e.size
		return
	}
	c.lru.Add(key, e)
	c.bytes += e.size
	c.evictLocked()
}

func (c *Cache) removeLocked(key Key) {
	if e, ok := c.pinned[key]; ok {
		delete(c.pinned, key)
		c.bytes -= e.size
		return
	}
	c.lru.Remove(key)
}

func (c *Cache) evictLocked() {
	for c.bytes > c.budget && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// Pin marks key as in-use by an active iterator, moving it out of the LRU's
// eviction order if it is currently cached. Pins nest: a key pinned twice
// needs two Unpin calls before it becomes evictable again.
func (c *Cache) Pin(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[key]++
	if _, ok := c.pinned[key]; ok {
		return
	}
	if v, ok := c.lru.Get(key); ok {
		e := v.(*entry)
		c.lru.Remove(key)
		c.pinned[key] = e
		c.bytes += e.size
	}
}

// Unpin releases one pin on key, returning it to the LRU's normal eviction
// order once the pin count reaches zero.
func (c *Cache) Unpin(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins[key] <= 0 {
		return
	}
	c.pins[key]--
	if c.pins[key] > 0 {
		return
	}
	delete(c.pins, key)
	if e, ok := c.pinned[key]; ok {
		delete(c.pinned, key)
		c.bytes -= e.size
		c.lru.Add(key, e)
		c.bytes += e.size
		c.evictLocked()
	}
}

// Len returns the total number of cached entries, pinned or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len() + len(c.pinned)
}

// Bytes returns the current total size of cached entries.
func (c *Cache) Bytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}
