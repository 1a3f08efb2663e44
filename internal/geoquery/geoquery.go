// Package geoquery answers "what is road quality near this point"
// queries: a bounding-box prefilter against the store, exact distance
// pruning, and nearest-first ordering, fronted by the query cache.
package geoquery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goodroad-data/roadscan/internal/cache"
	"github.com/goodroad-data/roadscan/internal/config"
	"github.com/goodroad-data/roadscan/internal/geo"
	"github.com/goodroad-data/roadscan/internal/monitoring"
	"github.com/goodroad-data/roadscan/internal/store"
)

var (
	// ErrInvalidRadius is returned for a non-positive search radius.
	ErrInvalidRadius = errors.New("geoquery: radius must be positive")
	// ErrInvalidQuery is returned for out-of-domain coordinates, limits
	// or radii.
	ErrInvalidQuery = errors.New("geoquery: invalid query")
)

// DefaultLimit is used when the caller does not specify a result limit.
const DefaultLimit = 50

// Result is one scored record with its exact distance from the query
// center.
type Result struct {
	Record         store.ConditionRecord `json:"record"`
	DistanceMeters float64               `json:"distance_meters"`
}

// RecordSource is the slice of the store the engine needs. Satisfied by
// *store.DB and by fakes in tests.
type RecordSource interface {
	RecordsInBox(ctx context.Context, box geo.BoundingBox, limit int) ([]store.ConditionRecord, error)
}

// Engine executes geospatial queries against a record source, consulting
// the cache first. A nil cache degrades to direct store queries.
type Engine struct {
	source       RecordSource
	cache        *cache.Cache[[]Result]
	keyPrecision int
	maxRadius    float64
	maxLimit     int
	rangeScanCap int
}

// NewEngine wires a query engine from its injected dependencies.
func NewEngine(source RecordSource, c *cache.Cache[[]Result], cfg *config.TuningConfig) *Engine {
	return &Engine{
		source:       source,
		cache:        c,
		keyPrecision: cfg.GetKeyPrecision(),
		maxRadius:    cfg.GetMaxQueryRadius(),
		maxLimit:     cfg.GetMaxQueryLimit(),
		rangeScanCap: cfg.GetRangeScanCap(),
	}
}

// Query returns up to limit records within radiusMeters of the center,
// nearest first. limit 0 means DefaultLimit. Invalid parameters return
// an error with no side effects: nothing is cached, nothing is read.
func (e *Engine) Query(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]Result, error) {
	if radiusMeters <= 0 {
		return nil, fmt.Errorf("%w: got %f", ErrInvalidRadius, radiusMeters)
	}
	if radiusMeters > e.maxRadius {
		return nil, fmt.Errorf("%w: radius %f exceeds maximum %f", ErrInvalidQuery, radiusMeters, e.maxRadius)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: coordinates (%f, %f) out of range", ErrInvalidQuery, lat, lon)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, limit)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}

	if e.cache == nil {
		return e.execute(ctx, lat, lon, radiusMeters, limit)
	}

	key := cache.NewKey(lat, lon, radiusMeters, e.keyPrecision)
	results, _, err := e.cache.Do(key, func() ([]Result, error) {
		return e.execute(ctx, lat, lon, radiusMeters, limit)
	})
	if err != nil {
		monitoring.Logf("geoquery: %s: recompute failed: %v", key, err)
		return nil, err
	}
	// The cached slice may hold more rows than this caller asked for
	// when an earlier query used a higher limit.
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) execute(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]Result, error) {
	// The box is a superset of the circle, so the range scan can only
	// over-admit; corner candidates are pruned by exact distance below.
	box := geo.NewBoundingBox(lat, lon, radiusMeters)
	candidates, err := e.source.RecordsInBox(ctx, box, e.rangeScanCap)
	if err != nil {
		return nil, fmt.Errorf("geoquery: range scan failed: %w", err)
	}

	results := make([]Result, 0, len(candidates))
	for _, rec := range candidates {
		d := geo.Distance(lat, lon, rec.Lat, rec.Lon)
		if d > radiusMeters {
			continue
		}
		results = append(results, Result{Record: rec, DistanceMeters: d})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceMeters != results[j].DistanceMeters {
			return results[i].DistanceMeters < results[j].DistanceMeters
		}
		// Deterministic tie-break: newer first, then by id.
		ti, tj := results[i].Record.RecordedAt, results[j].Record.RecordedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].Record.ID < results[j].Record.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
