package source

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/gcp-support/internal/model"
)

// ngsDefaultAccuracy is assumed for NGS photo-control points whose records
// carry no explicit accuracy. NGS targets are surveyed to sub-meter quality.
const ngsDefaultAccuracy = 0.5

var accuracyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rmse[:\s]+([\d.]+)\s*m`),
	regexp.MustCompile(`(?i)accuracy[:\s]+([\d.]+)\s*m`),
	regexp.MustCompile(`(?i)error[:\s]+([\d.]+)\s*m`),
	regexp.MustCompile(`(?i)precision[:\s]+([\d.]+)\s*m`),
}

// placemark mirrors the KML elements carrying GCP data. Field tags use local
// names only, so documents with and without the KML namespace both decode.
type placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description"`
	Point        kmlGeometry   `xml:"Point"`
	LineString   kmlGeometry   `xml:"LineString"`
	ExtendedData []placemarkKV `xml:"ExtendedData>Data"`
}

type kmlGeometry struct {
	Coordinates string `xml:"coordinates"`
}

type placemarkKV struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// ParseKMZ extracts GCPs from a KMZ archive (a ZIP wrapping one or more KML
// documents). Placemarks that yield no coordinates are skipped.
func ParseKMZ(path string) ([]model.GroundControlPoint, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open KMZ %s", path)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".kml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "source: open KML entry %s", f.Name)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "source: read KML entry %s", f.Name)
		}
		return ParseKML(bytes.NewReader(data))
	}
	return nil, eris.Errorf("source: no KML document inside %s", path)
}

// ParseKMLFile parses a bare KML file on disk.
func ParseKMLFile(path string) ([]model.GroundControlPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open KML %s", path)
	}
	defer func() { _ = f.Close() }()
	return ParseKML(f)
}

// ParseKML walks a KML document and converts every Placemark with usable
// coordinates into a GCP. Non-UTF-8 documents (some NGS exports declare
// ISO-8859-1) are transcoded via the declared charset.
func ParseKML(r io.Reader) ([]model.GroundControlPoint, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var points []model.GroundControlPoint
	idx := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "source: decode KML")
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Placemark" {
			continue
		}

		var pm placemark
		if err := dec.DecodeElement(&pm, &start); err != nil {
			return nil, eris.Wrap(err, "source: decode placemark")
		}
		if p, ok := pm.toPoint(idx); ok {
			points = append(points, p)
		}
		idx++
	}

	zap.L().Debug("source: parsed KML placemarks",
		zap.Int("placemarks", idx),
		zap.Int("points", len(points)),
	)
	return points, nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "utf-8", "us-ascii", "":
		return input, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	default:
		return nil, eris.Errorf("source: unsupported KML charset %q", charset)
	}
}

func (pm *placemark) toPoint(idx int) (model.GroundControlPoint, bool) {
	lon, lat, elev, ok := pm.coordinates()
	if !ok {
		return model.GroundControlPoint{}, false
	}

	meta := make(map[string]string, len(pm.ExtendedData))
	for _, kv := range pm.ExtendedData {
		if kv.Name != "" && kv.Value != "" {
			meta[strings.ToLower(kv.Name)] = strings.TrimSpace(kv.Value)
		}
	}

	id := strings.TrimSpace(pm.Name)
	if id == "" {
		id = "NOAA_GCP_" + pad4(idx)
	}

	typ := meta["type"]
	if typ == "" {
		typ = "control_point"
	}

	p := model.GroundControlPoint{
		ID:                id,
		Latitude:          model.Float(lat),
		Longitude:         model.Float(lon),
		Elevation:         elev,
		Accuracy:          model.Float(extractAccuracy(meta, pm.Description)),
		Type:              typ,
		Description:       strings.TrimSpace(pm.Description),
		PhotoIdentifiable: model.Bool(true), // NGS archive targets are placed to be visible from the air
		Source:            "NOAA",
	}
	return p, true
}

// coordinates prefers the Point geometry and falls back to the first vertex
// of a LineString.
func (pm *placemark) coordinates() (lon, lat, elev float64, ok bool) {
	if c, found := parseCoordinate(pm.Point.Coordinates); found {
		return c[0], c[1], c[2], true
	}
	for _, field := range strings.Fields(pm.LineString.Coordinates) {
		if c, found := parseCoordinate(field); found {
			return c[0], c[1], c[2], true
		}
	}
	return 0, 0, 0, false
}

// parseCoordinate parses one "lon,lat[,elev]" tuple.
func parseCoordinate(s string) ([3]float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 2 {
		return [3]float64{}, false
	}
	lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return [3]float64{}, false
	}
	var elev float64
	if len(parts) > 2 {
		if e, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err == nil {
			elev = e
		}
	}
	return [3]float64{lon, lat, elev}, true
}

// extractAccuracy pulls an RMSE figure out of metadata fields or free-text
// description, defaulting to the NGS sub-meter assumption.
func extractAccuracy(meta map[string]string, description string) float64 {
	for _, key := range []string{"accuracy", "rmse", "error", "precision"} {
		if v, ok := meta[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	for _, re := range accuracyPatterns {
		if m := re.FindStringSubmatch(description); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				return f
			}
		}
	}
	return ngsDefaultAccuracy
}

func pad4(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
