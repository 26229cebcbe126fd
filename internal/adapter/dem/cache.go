package dem

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/adriadescals/oil-palm-global/internal/observability"
	"github.com/paulmach/orb"
)

// CachedSource wraps an ElevationSource with an in-memory LRU cache keyed by
// the requested bound. Retried tiles hit the cache instead of the DEM.
type CachedSource struct {
	inner   domain.ElevationSource
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around an elevation source.
func NewCachedSource(inner domain.ElevationSource, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Elevation returns the cached window for bound, or asks the inner source.
// Errors are never cached so transient failures can be retried.
func (c *CachedSource) Elevation(ctx context.Context, bound orb.Bound) (*domain.ElevationModel, error) {
	key := boundKey(bound)
	if em, ok := c.cache.get(key); ok {
		c.metrics.DEMCache.WithLabelValues("hit").Inc()
		return em, nil
	}
	c.metrics.DEMCache.WithLabelValues("miss").Inc()

	em, err := c.inner.Elevation(ctx, bound)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, em)
	return em, nil
}

func boundKey(b orb.Bound) string {
	return fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// lruCache holds the most recently requested elevation windows.
// Cached models are shared and must not be mutated.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
}

type entry struct {
	key   string
	value *domain.ElevationModel
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (*domain.ElevationModel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (c *lruCache) put(key string, value *domain.ElevationModel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, value: value})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
