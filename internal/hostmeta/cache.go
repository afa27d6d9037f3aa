// Package hostmeta implements the host-meta cache (read path) and the
// crawler that keeps it fresh (write path). The two share one package
// because the crawler is the cache's only writer and the eviction/
// publish contract between them is part of their shared invariant, not
// a public API.
package hostmeta

import (
	"sync"
	"time"

	"stackyn/server/internal/model"
	"stackyn/server/internal/webhostmeta"
)

// cacheKey identifies one cached host-meta document: a specific service
// instance within a specific app.
type cacheKey struct {
	appName   model.AppName
	serviceID model.ServiceID
}

// cacheValue pairs a cached document with the wall-clock time it was
// inserted, used by the eviction policy to detect services that have
// since restarted.
type cacheValue struct {
	timestamp time.Time
	meta      webhostmeta.WebHostMeta
}

// RequestInfo carries the per-request data Decorate needs to rewrite
// relative links in a cached document into absolute ones.
type RequestInfo struct {
	BaseURL string
}

// EnrichedService is a Service augmented with the data Decorate attaches:
// the request's base URL unconditionally, and a cached host-meta
// document when one exists for it.
type EnrichedService struct {
	model.Service
	BaseURL string
	Meta    *webhostmeta.WebHostMeta
}

// Cache is the host-meta store, guarded by a RWMutex: readers share a
// read lock, and the writer takes the write lock only for the short
// publish step. Exactly one Crawler writes to a given Cache; any number
// of goroutines may call Decorate concurrently.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheValue
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]cacheValue)}
}

// Decorate attaches request_info.BaseURL to every service, plus a
// base-URL-rewritten cached meta document where the cache holds one.
// Never blocks on the crawler beyond acquiring a read lock, and never
// touches the container runtime.
func (c *Cache) Decorate(services map[model.AppName][]model.Service, info RequestInfo) map[model.AppName][]EnrichedService {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[model.AppName][]EnrichedService, len(services))
	for appName, svcs := range services {
		enriched := make([]EnrichedService, len(svcs))
		for i, svc := range svcs {
			e := EnrichedService{Service: svc, BaseURL: info.BaseURL}
			if value, ok := c.entries[cacheKey{appName: appName, serviceID: svc.ID}]; ok {
				meta := value.meta.WithBaseURL(info.BaseURL)
				e.Meta = &meta
			}
			enriched[i] = e
		}
		result[appName] = enriched
	}
	return result
}

// snapshot returns a point-in-time copy of the cache contents for the
// crawler's eviction/targeting passes. Copying (rather than iterating
// the live map under lock across the whole cycle) keeps the read lock
// held for a bounded, short duration.
func (c *Cache) snapshot() map[cacheKey]cacheValue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[cacheKey]cacheValue, len(c.entries))
	for k, v := range c.entries {
		snap[k] = v
	}
	return snap
}

// publish applies one crawler cycle's evictions and insertions under a
// single lock acquisition, so readers observe either the pre-cycle or
// the post-cycle state, never a partial mix of the two.
func (c *Cache) publish(evicts []cacheKey, inserts map[cacheKey]cacheValue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range evicts {
		delete(c.entries, k)
	}
	for k, v := range inserts {
		c.entries[k] = v
	}
}
