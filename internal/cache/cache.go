// Package cache memoizes geospatial query results keyed by a quantized
// (center, radius) fingerprint. Entries expire on TTL and are dropped
// whole when a write lands inside their implied bounding box.
package cache

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goodroad-data/roadscan/internal/geo"
)

// Key identifies one cache slot. Lat and Lon are already rounded to the
// configured precision so near-identical repeated queries collapse to
// the same slot.
type Key struct {
	Lat    float64
	Lon    float64
	Radius float64
}

// NewKey quantizes a query center to precision decimal places and pairs
// it with the radius. Four decimals is roughly 11m of slop.
func NewKey(lat, lon, radiusMeters float64, precision int) Key {
	scale := math.Pow(10, float64(precision))
	return Key{
		Lat:    math.Round(lat*scale) / scale,
		Lon:    math.Round(lon*scale) / scale,
		Radius: radiusMeters,
	}
}

// String renders the key in the conditions:<lat>:<lon>:<radius> form
// used in logs.
func (k Key) String() string {
	return fmt.Sprintf("conditions:%.4f:%.4f:%g", k.Lat, k.Lon, k.Radius)
}

// BoundingBox is the area the cached query covered. A write inside this
// box makes the entry stale.
func (k Key) BoundingBox() geo.BoundingBox {
	return geo.NewBoundingBox(k.Lat, k.Lon, k.Radius)
}

// Stats are cumulative instrumentation counters, primarily for tests
// and the stats endpoint.
type Stats struct {
	Hits          int `json:"hits"`
	Misses        int `json:"misses"`
	Puts          int `json:"puts"`
	Invalidations int `json:"invalidations"`
	Expirations   int `json:"expirations"`
}

type entry[V any] struct {
	key     Key
	value   V
	expires time.Time
}

// Cache is an in-process TTL cache with bounding-box invalidation and a
// best-effort single-flight guard per key.
type Cache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[Key]entry[V]
	inflight map[Key]chan struct{}
	stats    Stats

	// now is the clock, replaceable by tests.
	now func() time.Time
}

// New returns a cache whose entries live for ttl.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:      ttl,
		entries:  make(map[Key]entry[V]),
		inflight: make(map[Key]chan struct{}),
		now:      time.Now,
	}
}

// SetClock replaces the cache's time source. Test hook.
func (c *Cache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache[V]) Get(key Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[V]) getLocked(key Key) (V, bool) {
	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Put stores a value under key with the configured TTL.
func (c *Cache[V]) Put(key Key, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value)
}

func (c *Cache[V]) putLocked(key Key, value V) {
	c.entries[key] = entry[V]{key: key, value: value, expires: c.now().Add(c.ttl)}
	c.stats.Puts++
}

// Do returns the cached value for key or computes it with fn. At most
// one computation per key runs at a time: concurrent callers for the
// same key wait for the winner and reuse its result. The guard is best
// effort; an invalidation racing a computation may cause a redundant
// recompute.
func (c *Cache[V]) Do(key Key, fn func() (V, error)) (value V, cached bool, err error) {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		if v, ok := c.getLocked(key); ok {
			c.mu.Unlock()
			return v, true, nil
		}
		ch, busy := c.inflight[key]
		if !busy || attempt >= 2 {
			done := make(chan struct{})
			c.inflight[key] = done
			c.mu.Unlock()

			value, err = fn()

			c.mu.Lock()
			if c.inflight[key] == done {
				delete(c.inflight, key)
			}
			if err == nil {
				c.putLocked(key, value)
			}
			c.mu.Unlock()
			close(done)
			return value, false, err
		}
		c.mu.Unlock()
		<-ch
	}
}

// InvalidateArea drops every entry whose implied bounding box intersects
// box. Coarse on purpose: whole entries go, nothing is patched.
func (c *Cache[V]) InvalidateArea(box geo.BoundingBox) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, e := range c.entries {
		if e.key.BoundingBox().Intersects(box) {
			delete(c.entries, key)
			dropped++
		}
	}
	c.stats.Invalidations += dropped
	return dropped
}

// InvalidatePoint drops entries whose area covers the given location.
func (c *Cache[V]) InvalidatePoint(lat, lon float64) int {
	return c.InvalidateArea(geo.BoundingBox{MinLat: lat, MaxLat: lat, MinLon: lon, MaxLon: lon})
}

// Stats returns a snapshot of the instrumentation counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the number of live entries, counting expired ones until
// they are lazily collected.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
