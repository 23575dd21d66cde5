package mapbox

import (
	"container/list"
	"context"
	"math"
	"sync"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/observability"
)

// cellScale rounds coordinates to three decimals (about 110 m) so reports
// from the same spot share a cache entry.
const cellScale = 1000

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed by
// coordinate cell.
type CachedGeocoder struct {
	inner   domain.Geocoder
	metrics *observability.Metrics

	mu      sync.Mutex
	max     int
	order   *list.List // front is most recently used
	entries map[cell]*list.Element
}

type cell struct {
	lat, lon int64
}

type cacheEntry struct {
	key   cell
	value domain.GeocodingResult
}

// NewCachedGeocoder creates a cache decorator holding at most maxEntries
// places. metrics may be nil.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &CachedGeocoder{
		inner:   inner,
		metrics: metrics,
		max:     maxEntries,
		order:   list.New(),
		entries: make(map[cell]*list.Element),
	}
}

func cellOf(lat, lon float64) cell {
	return cell{lat: int64(math.Round(lat * cellScale)), lon: int64(math.Round(lon * cellScale))}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := cellOf(lat, lon)
	if result, ok := c.get(key); ok {
		c.observe("hit")
		return result, nil
	}
	c.observe("miss")

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so "not found" can be retried later.
	if result.FormattedAddress != "" {
		c.put(key, result)
	}
	return result, nil
}

// Len returns the number of cached places.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachedGeocoder) get(key cell) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *CachedGeocoder) put(key cell, value domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *CachedGeocoder) observe(result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues(result).Inc()
	}
}
