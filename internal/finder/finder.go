// Package finder orchestrates a GCP search: area resolution, multi-source
// querying with threshold fallback, deduplication, and filtering.
package finder

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/dedupe"
	"github.com/sells-group/gcp-support/internal/filter"
	"github.com/sells-group/gcp-support/internal/model"
	"github.com/sells-group/gcp-support/internal/scorer"
	"github.com/sells-group/gcp-support/internal/source"
)

// ErrNoSearchArea is returned when a request carries neither a bounding box
// nor H3 cells.
var ErrNoSearchArea = eris.New("finder: no search area (bounding box or cells required)")

const (
	defaultThreshold  = 10
	defaultMaxResults = 100
	gridWorkers       = 4
)

// Config tunes a Finder.
type Config struct {
	// Threshold is the minimum number of unique primary points below which
	// the secondary source is queried. The secondary archive is rate-limited
	// and slower, so it only fills gaps.
	Threshold int

	// MaxResults caps each individual source query.
	MaxResults int

	// UseGridRefs additionally queries the primary source by every WRS-2
	// path/row derived from the search box.
	UseGridRefs bool

	Filter filter.Config
}

// Request describes the search area. Exactly one of BBox or Cells should be
// set; when both are present the explicit box wins.
type Request struct {
	BBox  *model.BoundingBox
	Cells []string
}

// Result is the outcome of one Find invocation.
type Result struct {
	RunID   string                     `json:"run_id"`
	BBox    model.BoundingBox          `json:"bbox"`
	Points  []model.GroundControlPoint `json:"points"`
	Metrics scorer.Metrics             `json:"metrics"`
}

// Finder runs searches against a primary source with an optional secondary
// fallback.
type Finder struct {
	primary   source.Source
	secondary source.Source
	cfg       Config
}

// New creates a Finder. secondary may be nil to disable fallback.
func New(primary source.Source, secondary source.Source, cfg Config) *Finder {
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = defaultMaxResults
	}
	return &Finder{primary: primary, secondary: secondary, cfg: cfg}
}

// Find resolves the search area, queries sources, deduplicates, and filters.
// Source failures degrade to empty results with a warning; only an unusable
// request or area produces an error.
func (f *Finder) Find(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID))

	bbox, targetArea, err := f.resolveArea(req)
	if err != nil {
		return nil, err
	}
	log.Info("finder: searching",
		zap.String("bbox", bbox.String()),
		zap.String("primary", f.primary.Name()),
		zap.Int("cells", len(req.Cells)),
	)

	points := f.queryPrimary(ctx, log, bbox)
	points = dedupe.Points(points)
	log.Info("finder: primary results",
		zap.String("source", f.primary.Name()),
		zap.Int("unique_points", len(points)),
	)

	if len(points) < f.cfg.Threshold && f.secondary != nil {
		log.Info("finder: below threshold, querying secondary source",
			zap.Int("unique_points", len(points)),
			zap.Int("threshold", f.cfg.Threshold),
			zap.String("secondary", f.secondary.Name()),
		)
		secondary, err := f.secondary.FindByBBox(ctx, bbox, f.cfg.MaxResults)
		if err != nil {
			log.Warn("finder: secondary source failed",
				zap.String("source", f.secondary.Name()),
				zap.Error(err),
			)
		} else {
			points = dedupe.Points(append(points, secondary...))
		}
	}

	fcfg := f.cfg.Filter
	if fcfg.TargetArea == nil {
		fcfg.TargetArea = targetArea
	}
	kept, metrics := filter.Apply(points, fcfg, &bbox)
	log.Info("finder: search complete",
		zap.Int("candidates", len(points)),
		zap.Int("kept", len(kept)),
		zap.Float64("confidence_score", metrics.ConfidenceScore),
	)

	return &Result{RunID: runID, BBox: bbox, Points: kept, Metrics: metrics}, nil
}

// resolveArea turns the request into a bounding box and, for cell-based
// requests, the precise multipolygon target area.
func (f *Finder) resolveArea(req Request) (model.BoundingBox, geom.T, error) {
	if req.BBox != nil {
		if err := req.BBox.Validate(); err != nil {
			return model.BoundingBox{}, nil, err
		}
		return *req.BBox, nil, nil
	}
	if len(req.Cells) > 0 {
		bbox, err := area.CellsToBoundingBox(req.Cells)
		if err != nil {
			return model.BoundingBox{}, nil, err
		}
		poly, err := area.CellsToPolygon(req.Cells)
		if err != nil {
			return model.BoundingBox{}, nil, err
		}
		return bbox, poly, nil
	}
	return model.BoundingBox{}, nil, ErrNoSearchArea
}

// queryPrimary runs the bounding-box query plus, when enabled, one query per
// derived WRS-2 grid ref. Grid queries fan out over a bounded worker group;
// per-index collection keeps concatenation order deterministic regardless of
// scheduling. Individual failures degrade to empty slices.
func (f *Finder) queryPrimary(ctx context.Context, log *zap.Logger, bbox model.BoundingBox) []model.GroundControlPoint {
	points, err := f.primary.FindByBBox(ctx, bbox, f.cfg.MaxResults)
	if err != nil {
		log.Warn("finder: primary bbox query failed",
			zap.String("source", f.primary.Name()),
			zap.Error(err),
		)
		points = nil
	}

	gridSource, ok := f.primary.(source.GridSource)
	if !f.cfg.UseGridRefs || !ok {
		return points
	}

	refs := area.BoundingBoxToGridRefs(bbox)
	results := make([][]model.GroundControlPoint, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(gridWorkers)
	for i, ref := range refs {
		g.Go(func() error {
			found, err := gridSource.FindByGridRef(gctx, ref, f.cfg.MaxResults)
			if err != nil {
				log.Warn("finder: grid query failed",
					zap.Int("path", ref.Path),
					zap.Int("row", ref.Row),
					zap.Error(err),
				)
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	for _, r := range results {
		points = append(points, r...)
	}
	return points
}
