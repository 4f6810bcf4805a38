// Package store caches source query results so repeated searches of the
// same area do not re-hit quota-limited external APIs.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/model"
)

// Store is the persistence interface for the GCP query cache.
type Store interface {
	// GetQuery returns the cached points for a key, if present and fresh.
	GetQuery(ctx context.Context, key string) ([]model.GroundControlPoint, bool, error)

	// PutQuery caches the points under key with the given time-to-live.
	PutQuery(ctx context.Context, key string, points []model.GroundControlPoint, ttl time.Duration) error

	// PurgeExpired deletes stale entries and reports how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// QueryKey builds the cache key for a bounding-box search. Coordinates are
// fixed to 6 decimals so float formatting noise cannot split cache entries.
func QueryKey(source string, bbox model.BoundingBox, maxResults int) string {
	return fmt.Sprintf("%s:%.6f,%.6f,%.6f,%.6f:%d",
		source, bbox.MinLat, bbox.MinLon, bbox.MaxLat, bbox.MaxLon, maxResults)
}

// GridQueryKey builds the cache key for a WRS-2 grid-reference search. The
// "wrs2" tag keeps grid entries from ever colliding with bbox entries.
func GridQueryKey(source string, ref area.GridRef, maxResults int) string {
	return fmt.Sprintf("%s:wrs2:%d,%d:%d", source, ref.Path, ref.Row, maxResults)
}
