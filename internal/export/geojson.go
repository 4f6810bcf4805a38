package export

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/gcp-support/internal/model"
)

// WriteGeoJSON writes an RFC 7946 FeatureCollection of 3D points with
// accuracy, description, and source carried as feature properties.
func WriteGeoJSON(path string, points []model.GroundControlPoint) error {
	fc := geojson.FeatureCollection{}
	for i := range points {
		p := &points[i]
		lat, lon, ok := p.Coordinates()
		if !ok {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       p.Label(i),
			Geometry: geom.NewPointFlat(geom.XYZ, []float64{lon, lat, p.Elevation}),
			Properties: map[string]any{
				"id":          p.Label(i),
				"accuracy":    accuracyOf(p),
				"description": descriptionOf(p),
				"source":      p.Source,
			},
		})
	}

	data, err := json.MarshalIndent(&fc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
