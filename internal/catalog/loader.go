package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Cached parses a catalog from its source once and serves the same instance afterwards.
// Concurrent first callers wait for a single load. A failed load is not memoised.
type Cached struct {
	source Source

	mu      sync.Mutex
	catalog atomic.Pointer[Catalog]
}

// NewCached wraps a source with load-once semantics.
func NewCached(source Source) *Cached {
	return &Cached{source: source}
}

// Get returns the loaded catalog, loading it on first use.
func (c *Cached) Get(ctx context.Context) (*Catalog, error) {
	if c == nil || c.source == nil {
		return nil, errors.New("catalog: loader not configured")
	}
	if loaded := c.catalog.Load(); loaded != nil {
		return loaded, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if loaded := c.catalog.Load(); loaded != nil {
		return loaded, nil
	}
	data, err := c.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.catalog.Store(parsed)
	return parsed, nil
}

// Loaded reports whether the catalog has been populated.
func (c *Cached) Loaded() bool {
	return c != nil && c.catalog.Load() != nil
}
