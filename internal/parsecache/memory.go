package parsecache

import (
	"context"
	"sync"
)

// MemoryCache is an in-process Cache for tests and single-node setups.
type MemoryCache struct {
	entries sync.Map
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Lookup returns the entry for key, or ErrNotFound.
func (c *MemoryCache) Lookup(ctx context.Context, key string) (*Entry, error) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntry(v.(*Entry)), nil
}

// Store inserts entry unless the key exists. LoadOrStore makes the race
// between concurrent writers resolve to a single winner.
func (c *MemoryCache) Store(ctx context.Context, entry *Entry) (*Entry, error) {
	stored := copyEntry(entry)
	winner, _ := c.entries.LoadOrStore(entry.Key, stored)
	return copyEntry(winner.(*Entry)), nil
}

// copyEntry shields stored entries from caller mutation.
func copyEntry(e *Entry) *Entry {
	cp := *e
	cp.ReviewReasons = append(cp.ReviewReasons[:0:0], e.ReviewReasons...)
	cp.Fields.LineItems = append(cp.Fields.LineItems[:0:0], e.Fields.LineItems...)
	return &cp
}

var _ Cache = (*MemoryCache)(nil)
