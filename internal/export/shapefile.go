package export

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gcp-support/internal/model"
)

// WriteShapefile writes an ESRI point shapefile (plus .shx/.dbf sidecars)
// with ID, Z, ACCURACY, and DESC attributes. DBF strings cap at 254 bytes;
// the DESC field is truncated accordingly.
func WriteShapefile(path string, points []model.GroundControlPoint) error {
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	err = w.SetFields([]shp.Field{
		shp.StringField("ID", 32),
		shp.FloatField("Z", 13, 6),
		shp.FloatField("ACCURACY", 13, 6),
		shp.StringField("DESC", 128),
	})
	if err != nil {
		return eris.Wrap(err, "export: set shapefile fields")
	}

	for i := range points {
		p := &points[i]
		lat, lon, ok := p.Coordinates()
		if !ok {
			continue
		}
		row := int(w.Write(&shp.Point{X: lon, Y: lat}))

		desc := descriptionOf(p)
		if len(desc) > 128 {
			desc = desc[:128]
		}
		for field, value := range map[int]any{
			0: p.Label(i),
			1: p.Elevation,
			2: accuracyOf(p),
			3: desc,
		} {
			if err := w.WriteAttribute(row, field, value); err != nil {
				return eris.Wrapf(err, "export: write shapefile attribute %d", field)
			}
		}
	}
	return nil
}
