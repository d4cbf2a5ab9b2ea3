package geocode

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, address string) ([]domain.GeocodeResult, error) {
	key := cacheKey(address)
	if results, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return results, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	results, err := c.inner.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}
	// Empty answers are not cached so a later retry can still find the address.
	if len(results) > 0 {
		c.cache.put(key, results)
	}
	return results, nil
}

func cacheKey(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

// lruCache holds geocoding answers, most recently used at the front.
type lruCache struct {
	maxEntries int

	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element
}

type lruItem struct {
	key     string
	results []domain.GeocodeResult
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) ([]domain.GeocodeResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruItem).results, true
}

func (c *lruCache) put(key string, results []domain.GeocodeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*lruItem).results = results
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(&lruItem{key: key, results: results})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*lruItem).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
