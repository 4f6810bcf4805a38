package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/gcp-support/internal/model"
)

// WriteXLSX writes a survey-review workbook: one sheet, one row per point,
// with the full attribute set for manual inspection.
func WriteXLSX(path string, points []model.GroundControlPoint) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("GCPs")
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, name := range []string{"ID", "Latitude", "Longitude", "Elevation", "Accuracy", "Type", "Description", "Source"} {
		header.AddCell().SetString(name)
	}

	for i := range points {
		p := &points[i]
		lat, lon, ok := p.Coordinates()
		if !ok {
			continue
		}
		row := sheet.AddRow()
		row.AddCell().SetString(p.Label(i))
		row.AddCell().SetFloat(lat)
		row.AddCell().SetFloat(lon)
		row.AddCell().SetFloat(p.Elevation)
		row.AddCell().SetFloat(accuracyOf(p))
		row.AddCell().SetString(p.Type)
		row.AddCell().SetString(descriptionOf(p))
		row.AddCell().SetString(p.Source)
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}
