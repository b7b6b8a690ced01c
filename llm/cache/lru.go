package cache

import (
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned when a key is absent or its entry has expired.
var ErrCacheMiss = errors.New("cache miss")

// Entry is a cached value with its access bookkeeping.
type Entry[T any] struct {
	Value        T         `json:"value"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`
}

// Config configures a Cache.
type Config struct {
	MaxSize int           `yaml:"max_size" json:"max_size"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultConfig returns the defaults for response caching.
func DefaultConfig() Config {
	return Config{
		MaxSize: 100,
		TTL:     time.Hour,
	}
}

// Stats reports cache effectiveness.
type Stats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
}

// Cache is an in-process LRU cache with TTL expiry. Recency is tracked with
// a doubly linked list so Get, Set, and eviction are all O(1).
type Cache[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*node[T]
	head     *node[T] // most recently used
	tail     *node[T] // least recently used

	hits      int64
	misses    int64
	evictions int64
}

type node[T any] struct {
	key   string
	entry *Entry[T]
	prev  *node[T]
	next  *node[T]
}

// New creates a Cache with the given config.
func New[T any](config Config) *Cache[T] {
	if config.MaxSize < 1 {
		config.MaxSize = DefaultConfig().MaxSize
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	return &Cache[T]{
		capacity: config.MaxSize,
		ttl:      config.TTL,
		items:    make(map[string]*node[T]),
	}
}

// Get returns the cached value for key. An absent or TTL-expired key is a
// miss; expiry discovered here evicts the entry immediately.
func (c *Cache[T]) Get(key string) (T, error) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, ErrCacheMiss
	}

	if time.Since(n.entry.CreatedAt) >= c.ttl {
		c.removeNode(n)
		delete(c.items, key)
		c.misses++
		return zero, ErrCacheMiss
	}

	n.entry.LastAccessed = time.Now()
	n.entry.AccessCount++
	c.moveToHead(n)
	c.hits++

	return n.entry.Value, nil
}

// Set inserts or updates the value for key. Inserting a new key at capacity
// first evicts the least-recently-used entry.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if n, ok := c.items[key]; ok {
		n.entry.Value = value
		n.entry.CreatedAt = now
		n.entry.LastAccessed = now
		c.moveToHead(n)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	n := &node[T]{
		key: key,
		entry: &Entry[T]{
			Value:        value,
			CreatedAt:    now,
			LastAccessed: now,
		},
	}
	c.items[key] = n
	c.addToHead(n)
}

// Delete removes key if present.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		c.removeNode(n)
		delete(c.items, key)
	}
}

// Cleanup proactively purges all TTL-expired entries.
func (c *Cache[T]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, n := range c.items {
		if time.Since(n.entry.CreatedAt) >= c.ttl {
			c.removeNode(n)
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Clear removes everything but keeps hit/miss counters.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*node[T])
	c.head = nil
	c.tail = nil
}

// Stats returns a snapshot of cache counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}

	return Stats{
		Size:      len(c.items),
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   rate,
		Evictions: c.evictions,
	}
}

func (c *Cache[T]) addToHead(n *node[T]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache[T]) removeNode(n *node[T]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
}

func (c *Cache[T]) moveToHead(n *node[T]) {
	if n == c.head {
		return
	}
	c.removeNode(n)
	c.addToHead(n)
}

func (c *Cache[T]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
	c.evictions++
}
