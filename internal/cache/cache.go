package cache

import (
	"sync"
	"sync/atomic"
)

// Cache is a thread-safe LRU cache with a fixed capacity.
//
// Cache must not be copied after creation.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	index    map[K]*node[K, V]
	order    recency[K, V]
	capacity int
	onEvict  func(K, V)

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache holding at most capacity entries. A capacity of 0
// means unlimited. onEvict, if not nil, is called for every entry removed
// by eviction, Delete or Clear, with the cache lock held.
func New[K comparable, V any](capacity int, onEvict func(K, V)) *Cache[K, V] {
	return &Cache[K, V]{
		index:    make(map[K]*node[K, V]),
		capacity: capacity,
		onEvict:  onEvict,
	}
}

// Get returns the value stored under key and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.index[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	c.order.moveToFront(n)
	return n.value, true
}

// GetOrCreate returns the value stored under key or creates it. create
// runs under the cache lock, so concurrent callers never create the same
// key twice. A failed create stores nothing. The boolean result reports
// whether the value came from the cache.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.index[key]; ok {
		c.hits.Add(1)
		c.order.moveToFront(n)
		return n.value, true, nil
	}
	c.misses.Add(1)
	value, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.insert(key, value)
	return value, false, nil
}

// Set stores value under key, replacing any previous value without
// calling onEvict for it.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.index[key]; ok {
		n.value = value
		c.order.moveToFront(n)
		return
	}
	c.insert(key, value)
}

// insert adds a new entry and evicts the least recently used entries
// beyond capacity. Caller must hold c.mu.
func (c *Cache[K, V]) insert(key K, value V) {
	n := &node[K, V]{key: key, value: value}
	c.index[key] = n
	c.order.pushFront(n)
	for c.capacity > 0 && c.order.n > c.capacity {
		old := c.order.oldest()
		c.drop(old)
		c.evictions.Add(1)
	}
}

// drop removes n and reports it to onEvict. Caller must hold c.mu.
func (c *Cache[K, V]) drop(n *node[K, V]) {
	c.order.remove(n)
	delete(c.index, n.key)
	if c.onEvict != nil {
		c.onEvict(n.key, n.value)
	}
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.index[key]
	if ok {
		c.drop(n)
	}
	return ok
}

// Clear removes every entry, least recently used first.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.order.oldest(); n != nil; n = c.order.oldest() {
		c.drop(n)
	}
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.n
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	s := Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	// HitRate is Hits / (Hits + Misses), 0 before the first lookup.
	HitRate float64
}
