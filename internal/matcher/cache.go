package matcher

import (
	"sync"
)

// DefaultCacheSize is the bound used when a non-positive capacity is given.
const DefaultCacheSize = 100

// Cache remembers resolved utterances keyed by their normalised text,
// including "no match" outcomes (stored as nil).
//
// Eviction is FIFO by insertion order: once full, inserting a new key drops
// the key that was inserted earliest, regardless of how recently it was
// read. Updating an existing key keeps its original position.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*Result
	// order is a ring of keys; once full, head points at the oldest key.
	order []string
	head  int
}

// NewCache returns an empty cache holding at most capacity entries.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*Result, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Get returns the cached outcome for key. found reports whether key is
// cached at all; res is nil for a cached "no match".
func (c *Cache) Get(key string) (res *Result, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, found = c.entries[key]
	return res, found
}

// Put stores res under key. It returns the evicted key, if any.
func (c *Cache) Put(key string, res *Result) (evicted string, didEvict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = res
		return "", false
	}

	if len(c.order) < c.capacity {
		c.order = append(c.order, key)
	} else {
		evicted = c.order[c.head]
		delete(c.entries, evicted)
		c.order[c.head] = key
		c.head = (c.head + 1) % c.capacity
		didEvict = true
	}
	c.entries[key] = res
	return evicted, didEvict
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cap returns the configured bound.
func (c *Cache) Cap() int {
	return c.capacity
}

// Keys returns the cached keys from oldest to newest insertion.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.order))
	keys = append(keys, c.order[c.head:]...)
	keys = append(keys, c.order[:c.head]...)
	return keys
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.order = c.order[:0]
	c.head = 0
}
