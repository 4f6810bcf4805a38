package export

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gcp-support/internal/model"
)

// WriteArcGISCSV writes the XY-table CSV ArcGIS Pro imports. Columns: ID,
// X (lon), Y (lat), Z, Accuracy, Description.
func WriteArcGISCSV(path string, points []model.GroundControlPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ID", "X", "Y", "Z", "Accuracy", "Description"}); err != nil {
		return eris.Wrap(err, "export: write arcgis header")
	}
	for i := range points {
		p := &points[i]
		lat, lon, ok := p.Coordinates()
		if !ok {
			continue
		}
		record := []string{
			p.Label(i),
			formatFloat(lon),
			formatFloat(lat),
			formatFloat(p.Elevation),
			formatFloat(accuracyOf(p)),
			descriptionOf(p),
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "export: write arcgis record")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "export: flush arcgis csv")
}
