package export

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/gcp-support/internal/model"
)

func testPoints() []model.GroundControlPoint {
	return []model.GroundControlPoint{
		{
			ID:          "NGS_1",
			Latitude:    model.Float(30.25),
			Longitude:   model.Float(-97.5),
			Elevation:   120.5,
			Accuracy:    model.Float(0.3),
			Type:        "road intersection",
			Description: "painted target",
			Source:      "NOAA",
		},
		{
			// No ID, no accuracy: exercises Label() and the default accuracy.
			Latitude:  model.Float(30.35),
			Longitude: model.Float(-97.6),
			Type:      "building corner",
			Source:    "USGS",
		},
		{ID: "NO_COORDS", Description: "must be skipped"},
	}
}

func TestWriteMetaShapeCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcps_metashape.txt")
	require.NoError(t, WriteMetaShapeCSV(path, testPoints()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.Comma = '\t'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two coordinate-bearing points")

	assert.Equal(t, []string{"Label", "X", "Y", "Z", "Accuracy", "Enabled"}, rows[0])
	assert.Equal(t, []string{"NGS_1", "-97.5", "30.25", "120.5", "0.3", "1"}, rows[1])
	assert.Equal(t, "GCP_2", rows[2][0], "missing ID synthesizes a positional label")
	assert.Equal(t, "1", rows[2][4], "missing accuracy defaults to one meter")
}

func TestWriteMetaShapeXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcps_metashape.xml")
	require.NoError(t, WriteMetaShapeXML(path, testPoints()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc markerDocument
	require.NoError(t, xml.Unmarshal(data, &doc))
	require.Len(t, doc.Chunks, 1)
	require.Len(t, doc.Chunks[0].Markers, 2)

	m := doc.Chunks[0].Markers[0]
	assert.Equal(t, "NGS_1", m.Label)
	assert.Equal(t, "true", m.Reference)
	assert.Equal(t, -97.5, m.Position.X)
	assert.Equal(t, 30.25, m.Position.Y)
	assert.Equal(t, 120.5, m.Position.Z)
	assert.Equal(t, 0.3, m.Accuracy.X)
}

func TestWriteArcGISCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcps_arcgis.csv")
	require.NoError(t, WriteArcGISCSV(path, testPoints()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "X", "Y", "Z", "Accuracy", "Description"}, rows[0])
	assert.Equal(t, "NGS_1", rows[1][0])
	assert.Equal(t, "painted target", rows[1][5])
	assert.Equal(t, "building corner", rows[2][5], "description falls back to type")
}

func TestWriteGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcps_arcgis.geojson")
	require.NoError(t, WriteGeoJSON(path, testPoints()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)

	g := fc.Features[0].Geometry
	assert.Equal(t, "Point", g.Type)
	require.Len(t, g.Coordinates, 3)
	assert.Equal(t, -97.5, g.Coordinates[0])
	assert.Equal(t, 30.25, g.Coordinates[1])
	assert.Equal(t, 120.5, g.Coordinates[2])
	assert.Equal(t, "NOAA", fc.Features[0].Properties["source"])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcps_review.xlsx")
	require.NoError(t, WriteXLSX(path, testPoints()))

	wb, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)

	sheet := wb.Sheets[0]
	assert.Equal(t, "GCPs", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "ID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "NGS_1", sheet.Rows[1].Cells[0].String())

	lat, err := sheet.Rows[1].Cells[1].Float()
	require.NoError(t, err)
	assert.Equal(t, 30.25, lat)
}

func TestWriteShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcps_arcgis.shp")
	require.NoError(t, WriteShapefile(path, testPoints()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	// The attribute table rides alongside.
	_, err = os.Stat(strings.TrimSuffix(path, ".shp") + ".dbf")
	assert.NoError(t, err)
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteAll(dir, "gcps", testPoints()))

	for _, name := range []string{
		"gcps_metashape.txt",
		"gcps_metashape.xml",
		"gcps_arcgis.csv",
		"gcps_arcgis.geojson",
		"gcps_review.xlsx",
		"gcps_arcgis.shp",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestWriteAll_EmptyPoints(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, WriteAll(dir, "gcps", nil))

	_, err := os.Stat(filepath.Join(dir, "gcps_metashape.txt"))
	assert.NoError(t, err, "headers-only files are still written")
}
