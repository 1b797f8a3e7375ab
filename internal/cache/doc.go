// Package cache provides the LRU cache that deduplicates compiled
// pipeline resource signatures.
//
// Signatures are keyed by the fingerprint of their descriptor table. The
// device layer stores every signature it builds and evicts the least
// recently used one when the cache is full, releasing its immutable
// samplers through the eviction callback.
//
//	c := cache.New[uint64, *entry](64, func(_ uint64, e *entry) { e.release() })
//	sig, hit, err := c.GetOrCreate(desc.Fingerprint(), build)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
