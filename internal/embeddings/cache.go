package embeddings

import (
	"context"
	"sync"
)

// Cache avoids recomputing vectors for unchanged canonical text. Keys are
// (text hash, provider id, mode): the same text embedded by a different
// provider, or in a different mode, is a different entry.
type Cache interface {
	Get(ctx context.Context, textHash, providerID string, mode Mode) ([]float32, bool)
	Put(ctx context.Context, textHash, providerID string, mode Mode, vector []float32)
}

// cacheKey joins the three key components.
func cacheKey(textHash, providerID string, mode Mode) string {
	return textHash + "|" + providerID + "|" + string(mode)
}

// MemoryCache is an in-process embedding cache.
type MemoryCache struct {
	entries sync.Map
}

// NewMemoryCache creates an empty in-memory embedding cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the cached vector for the key, if present.
func (c *MemoryCache) Get(ctx context.Context, textHash, providerID string, mode Mode) ([]float32, bool) {
	v, ok := c.entries.Load(cacheKey(textHash, providerID, mode))
	if !ok {
		return nil, false
	}
	vec := v.([]float32)
	return append([]float32(nil), vec...), true
}

// Put stores the vector under the key.
func (c *MemoryCache) Put(ctx context.Context, textHash, providerID string, mode Mode, vector []float32) {
	c.entries.Store(cacheKey(textHash, providerID, mode), append([]float32(nil), vector...))
}

var _ Cache = (*MemoryCache)(nil)
