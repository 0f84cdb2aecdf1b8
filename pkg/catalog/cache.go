package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const tablesCacheKey = "tables"

// Cached wraps a Catalog and caches ListTables for TTL. A table created or
// dropped in the backend becomes visible to retrieval at most TTL later.
// Table descriptions and query execution always go to the backend.
type Cached struct {
	Catalog

	ttl     time.Duration
	cache   *ttlcache.Cache[string, []string]
	cacheMu sync.RWMutex
}

func NewCached(inner Catalog, ttl time.Duration) (*Cached, error) {
	if inner == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []string](ttl),
		ttlcache.WithDisableTouchOnHit[string, []string](),
	)
	return &Cached{
		Catalog: inner,
		ttl:     ttl,
		cache:   cache,
	}, nil
}

func (c *Cached) ListTables(ctx context.Context) ([]string, error) {
	if tables := c.getCachedTables(); tables != nil {
		return tables, nil
	}
	tables, err := c.Catalog.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []string{}
	}
	c.setCachedTables(tables)
	return tables, nil
}

// Invalidate drops the cached table list.
func (c *Cached) Invalidate() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache.Delete(tablesCacheKey)
}

func (c *Cached) getCachedTables() []string {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	cached := c.cache.Get(tablesCacheKey)
	if cached == nil {
		return nil
	}
	return append([]string{}, cached.Value()...)
}

func (c *Cached) setCachedTables(tables []string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache.Set(tablesCacheKey, append([]string{}, tables...), c.ttl)
}
