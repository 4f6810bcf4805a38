// Package source provides clients for external ground-control-point
// providers (USGS M2M, the NOAA NGS photo-control archive) plus a synthetic
// generator used as a fallback when neither is reachable.
package source

import (
	"context"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/model"
)

// Source is a GCP provider queryable by bounding box. Implementations must
// return an empty slice (not an error) on no-results and should absorb
// transient upstream problems into a typed error the orchestrator can log
// and degrade on.
type Source interface {
	Name() string
	FindByBBox(ctx context.Context, bbox model.BoundingBox, maxResults int) ([]model.GroundControlPoint, error)
}

// GridSource is a Source that additionally supports lookups by WRS-2 grid
// reference.
type GridSource interface {
	Source
	FindByGridRef(ctx context.Context, ref area.GridRef, maxResults int) ([]model.GroundControlPoint, error)
}
