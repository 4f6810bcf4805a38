package source

import (
	"fmt"
	"math/rand/v2"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/model"
)

// syntheticTypes are plausible photo-identifiable feature types assigned to
// generated points.
var syntheticTypes = []string{
	"road intersection",
	"building corner",
	"landmark",
	"structure corner",
	"survey marker",
}

// Generator produces synthetic GCPs scattered uniformly in an area. Both
// real clients fall back to it when their upstream is unavailable, and tests
// use it directly. Seeding makes output reproducible.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a Generator seeded for reproducible output.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// InBBox generates count points uniformly distributed in the box, with
// accuracy drawn from [minAcc, maxAcc) meters and IDs prefixed by source.
func (g *Generator) InBBox(bbox model.BoundingBox, count int, minAcc, maxAcc float64, source string) []model.GroundControlPoint {
	points := make([]model.GroundControlPoint, 0, count)
	for i := 0; i < count; i++ {
		lat := bbox.MinLat + g.rng.Float64()*bbox.Height()
		lon := bbox.MinLon + g.rng.Float64()*bbox.Width()
		acc := minAcc + g.rng.Float64()*(maxAcc-minAcc)
		typ := syntheticTypes[g.rng.IntN(len(syntheticTypes))]

		points = append(points, model.GroundControlPoint{
			ID:                fmt.Sprintf("%s_GCP_%04d", source, i+1),
			Latitude:          model.Float(lat),
			Longitude:         model.Float(lon),
			Elevation:         g.rng.Float64() * 500,
			Accuracy:          model.Float(acc),
			Type:              typ,
			Description:       fmt.Sprintf("%s %s at %.6f, %.6f", source, typ, lat, lon),
			PhotoIdentifiable: model.Bool(true),
			Source:            source,
		})
	}
	return points
}

// ForGridRef generates points around the approximate center of a WRS-2
// path/row cell, inverting the same linear formula the grid mapping uses.
func (g *Generator) ForGridRef(ref area.GridRef, count int, source string) []model.GroundControlPoint {
	baseLon := -180.0 + float64(ref.Path-1)*7.5
	baseLat := 80.0 - float64(ref.Row-1)*0.05

	bbox := model.BoundingBox{
		MinLat: baseLat - 0.1,
		MinLon: baseLon - 0.1,
		MaxLat: baseLat + 0.1,
		MaxLon: baseLon + 0.1,
	}
	return g.InBBox(bbox, count, 0.1, 2.0, source)
}
