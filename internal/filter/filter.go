// Package filter applies per-point quality criteria and a set-level
// spatial-distribution gate to candidate ground control points.
package filter

import (
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/gcp-support/internal/model"
	"github.com/sells-group/gcp-support/internal/scorer"
)

// advisoryConfidence is the level below which a set always draws a warning
// log, independent of any configured rejection threshold.
const advisoryConfidence = 0.5

// identifiableVocabulary lists type/description substrings that mark a point
// as locatable in aerial imagery.
var identifiableVocabulary = []string{
	"road intersection",
	"building corner",
	"corner",
	"intersection",
	"landmark",
	"structure",
	"marker",
}

// Config holds the filter criteria. Immutable; owned by the caller.
type Config struct {
	// MinAccuracy is the maximum tolerated RMSE in meters. Points without a
	// reported accuracy pass: survey sources frequently omit the field and
	// excluding them would empty most result sets. Documented policy, not an
	// oversight.
	MinAccuracy float64

	// RequirePhotoIdentifiable enables the identifiability heuristic.
	RequirePhotoIdentifiable bool

	// TargetArea restricts points to a polygon or multipolygon when set.
	TargetArea geom.T

	// MinSpreadScore rejects the entire surviving set when its spread score
	// falls below the value. Nil disables the gate.
	MinSpreadScore *float64

	// MinConfidenceScore rejects the entire surviving set when its
	// confidence score falls below the value. Nil disables the gate.
	MinConfidenceScore *float64
}

// Apply filters points per-point, then evaluates the surviving set's spatial
// distribution. The computed metrics are always returned alongside the
// result; when a configured set-level threshold fails, the returned slice is
// empty (accept/reject-everything policy, never per-point pruning).
func Apply(points []model.GroundControlPoint, cfg Config, bbox *model.BoundingBox) ([]model.GroundControlPoint, scorer.Metrics) {
	kept := make([]model.GroundControlPoint, 0, len(points))
	for i := range points {
		if !meetsAccuracy(&points[i], cfg.MinAccuracy) {
			continue
		}
		if cfg.RequirePhotoIdentifiable && !isPhotoIdentifiable(&points[i]) {
			continue
		}
		if cfg.TargetArea != nil && !inTargetArea(&points[i], cfg.TargetArea) {
			continue
		}
		kept = append(kept, points[i])
	}

	metrics := scorer.Score(kept, bbox)
	if len(kept) < 2 {
		return kept, metrics
	}

	if metrics.ConfidenceScore < advisoryConfidence {
		zap.L().Warn("filter: poor spatial distribution",
			zap.Float64("confidence_score", metrics.ConfidenceScore),
			zap.Float64("spread_score", metrics.SpreadScore),
			zap.Int("num_points", metrics.NumPoints),
		)
	}

	if cfg.MinSpreadScore != nil && metrics.SpreadScore < *cfg.MinSpreadScore {
		zap.L().Warn("filter: rejecting set below minimum spread score",
			zap.Float64("spread_score", metrics.SpreadScore),
			zap.Float64("min_spread_score", *cfg.MinSpreadScore),
		)
		return nil, metrics
	}
	if cfg.MinConfidenceScore != nil && metrics.ConfidenceScore < *cfg.MinConfidenceScore {
		zap.L().Warn("filter: rejecting set below minimum confidence score",
			zap.Float64("confidence_score", metrics.ConfidenceScore),
			zap.Float64("min_confidence_score", *cfg.MinConfidenceScore),
		)
		return nil, metrics
	}

	return kept, metrics
}

// meetsAccuracy passes points whose RMSE is within the threshold. Unknown
// accuracy passes by policy (see Config.MinAccuracy).
func meetsAccuracy(p *model.GroundControlPoint, minAccuracy float64) bool {
	if p.Accuracy == nil {
		return true
	}
	return *p.Accuracy <= minAccuracy
}

// isPhotoIdentifiable passes on a vocabulary match in type or description,
// then defers to the explicit flag, and passes when no signal exists at all.
// The no-signal default is knowingly permissive; most untyped records would
// otherwise never survive.
func isPhotoIdentifiable(p *model.GroundControlPoint) bool {
	typ := strings.ToLower(p.Type)
	desc := strings.ToLower(p.Description)
	for _, word := range identifiableVocabulary {
		if strings.Contains(typ, word) || strings.Contains(desc, word) {
			return true
		}
	}
	if p.PhotoIdentifiable != nil {
		return *p.PhotoIdentifiable
	}
	return true
}

// inTargetArea reports whether the point lies inside or on the boundary of
// the target polygon. Points without coordinates fail: membership cannot be
// established, and defaulting to (0,0) would admit points oceans away.
func inTargetArea(p *model.GroundControlPoint, target geom.T) bool {
	lat, lon, ok := p.Coordinates()
	if !ok {
		return false
	}
	pt := geom.Coord{lon, lat}

	switch t := target.(type) {
	case *geom.Polygon:
		return coordInPolygon(pt, t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if coordInPolygon(pt, t.Polygon(i)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func coordInPolygon(pt geom.Coord, poly *geom.Polygon) bool {
	if poly.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(poly.Layout(), pt, poly.LinearRing(0).FlatCoords()) {
		return false
	}
	// Holes exclude, except on their boundary.
	for i := 1; i < poly.NumLinearRings(); i++ {
		ring := poly.LinearRing(i).FlatCoords()
		if xy.IsPointInRing(poly.Layout(), pt, ring) && !xy.IsOnLine(poly.Layout(), pt, ring) {
			return false
		}
	}
	return true
}
