package export

import (
	"encoding/csv"
	"encoding/xml"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gcp-support/internal/model"
)

// WriteMetaShapeCSV writes the tab-separated marker list MetaShape imports
// via Reference > Import. Columns: Label, X (lon), Y (lat), Z, Accuracy,
// Enabled.
func WriteMetaShapeCSV(path string, points []model.GroundControlPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	if err := w.Write([]string{"Label", "X", "Y", "Z", "Accuracy", "Enabled"}); err != nil {
		return eris.Wrap(err, "export: write metashape header")
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
			"1",
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "export: write metashape record")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "export: flush metashape csv")
}

// markerDocument mirrors the MetaShape marker XML layout:
// document > chunks > chunk > markers > marker.
type markerDocument struct {
	XMLName xml.Name      `xml:"document"`
	Chunks  []markerChunk `xml:"chunks>chunk"`
}

type markerChunk struct {
	Markers []marker `xml:"markers>marker"`
}

type marker struct {
	Label     string         `xml:"label,attr"`
	Reference string         `xml:"reference,attr"`
	Position  markerPosition `xml:"position"`
	Accuracy  markerAccuracy `xml:"accuracy"`
}

type markerPosition struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
	Z float64 `xml:"z,attr"`
}

type markerAccuracy struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
	Z float64 `xml:"z,attr"`
}

// WriteMetaShapeXML writes the marker XML document variant.
func WriteMetaShapeXML(path string, points []model.GroundControlPoint) error {
	chunk := markerChunk{}
	for i := range points {
		p := &points[i]
		lat, lon, ok := p.Coordinates()
		if !ok {
			continue
		}
		acc := accuracyOf(p)
		chunk.Markers = append(chunk.Markers, marker{
			Label:     p.Label(i),
			Reference: "true",
			Position:  markerPosition{X: lon, Y: lat, Z: p.Elevation},
			Accuracy:  markerAccuracy{X: acc, Y: acc, Z: acc},
		})
	}
	doc := markerDocument{Chunks: []markerChunk{chunk}}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(xml.Header); err != nil {
		return eris.Wrap(err, "export: write xml header")
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "export: encode marker xml")
	}
	return eris.Wrap(enc.Close(), "export: close marker xml encoder")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
