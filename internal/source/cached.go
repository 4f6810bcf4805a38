package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/model"
	"github.com/sells-group/gcp-support/internal/store"
)

// CachedSource wraps a Source with the query cache. External quotas are the
// scarce resource here, so hits bypass the network entirely.
type CachedSource struct {
	inner Source
	store store.Store
	ttl   time.Duration
}

// NewCached wraps inner with cache lookups against s. Wrapping a GridSource
// yields a GridSource, so capability checks against the wrapper behave the
// same as against the inner source. A zero ttl defaults to 24 hours.
func NewCached(inner Source, s store.Store, ttl time.Duration) Source {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	c := &CachedSource{inner: inner, store: s, ttl: ttl}
	if grid, ok := inner.(GridSource); ok {
		return &cachedGridSource{CachedSource: c, grid: grid}
	}
	return c
}

func (c *CachedSource) Name() string { return c.inner.Name() }

// FindByBBox consults the cache before the wrapped source.
func (c *CachedSource) FindByBBox(ctx context.Context, bbox model.BoundingBox, maxResults int) ([]model.GroundControlPoint, error) {
	key := store.QueryKey(c.inner.Name(), bbox, maxResults)
	return c.fetchThrough(ctx, key, func() ([]model.GroundControlPoint, error) {
		return c.inner.FindByBBox(ctx, bbox, maxResults)
	})
}

// fetchThrough is the cache-aside read shared by every query shape. Cache
// failures are logged and treated as misses; a failed write never fails the
// query.
func (c *CachedSource) fetchThrough(ctx context.Context, key string, fetch func() ([]model.GroundControlPoint, error)) ([]model.GroundControlPoint, error) {
	points, hit, err := c.store.GetQuery(ctx, key)
	if err != nil {
		zap.L().Warn("source: cache lookup failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		zap.L().Debug("source: cache hit", zap.String("key", key), zap.Int("points", len(points)))
		return points, nil
	}

	points, err = fetch()
	if err != nil {
		return nil, err
	}

	if err := c.store.PutQuery(ctx, key, points, c.ttl); err != nil {
		zap.L().Warn("source: cache write failed", zap.String("key", key), zap.Error(err))
	}
	return points, nil
}

// cachedGridSource carries the grid-ref query through the cache when the
// wrapped source supports it.
type cachedGridSource struct {
	*CachedSource
	grid GridSource
}

// FindByGridRef consults the cache before the wrapped source, keyed by
// path/row so grid entries never alias bbox entries.
func (c *cachedGridSource) FindByGridRef(ctx context.Context, ref area.GridRef, maxResults int) ([]model.GroundControlPoint, error) {
	key := store.GridQueryKey(c.inner.Name(), ref, maxResults)
	return c.fetchThrough(ctx, key, func() ([]model.GroundControlPoint, error) {
		return c.grid.FindByGridRef(ctx, ref, maxResults)
	})
}
