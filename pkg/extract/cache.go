package extract

import (
	"context"
	"encoding/json"
	"sync"
)

// CacheKey identifies one extraction. Bumping Version invalidates all
// entries for a model.
type CacheKey struct {
	DocID   string
	Version string
	Model   string
}

func (k CacheKey) String() string {
	return k.DocID + "|" + k.Version + "|" + k.Model
}

// Cache is read-through storage for extraction results.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (*Result, bool, error)
	Put(ctx context.Context, key CacheKey, res *Result) error
}

// MemoryCache keeps results in process. Entries are stored as JSON so
// callers can never mutate a cached value.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string][]byte{}}
}

func (c *MemoryCache) Get(_ context.Context, key CacheKey) (*Result, bool, error) {
	c.mu.RLock()
	data, ok := c.entries[key.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key CacheKey, res *Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key.String()] = data
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
