// Package basemap downloads slippy-map tiles, stitches them into a
// georeferenced image of a bounding box, and optionally draws GCP markers.
package basemap

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gcp-support/internal/model"
)

const tileSize = 256

// metersPerPixelEquator is the Web Mercator ground resolution at zoom 0.
const metersPerPixelEquator = 156543.03392

// Tile identifies one slippy-map tile.
type Tile struct {
	X, Y, Zoom int
}

// Deg2Num converts a coordinate to the tile containing it.
func Deg2Num(lat, lon float64, zoom int) (x, y int) {
	n := math.Exp2(float64(zoom))
	x = int((lon + 180.0) / 360.0 * n)
	y = int((1.0 - math.Asinh(math.Tan(lat*math.Pi/180.0))/math.Pi) / 2.0 * n)
	return x, y
}

// Num2Deg returns the coordinate of the tile's top-left corner.
func Num2Deg(x, y, zoom int) (lat, lon float64) {
	n := math.Exp2(float64(zoom))
	lon = float64(x)/n*360.0 - 180.0
	lat = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180.0 / math.Pi
	return lat, lon
}

// globalPixel converts a coordinate to absolute pixel position in the world
// raster at the given zoom.
func globalPixel(lat, lon float64, zoom int) (px, py float64) {
	n := math.Exp2(float64(zoom)) * tileSize
	px = (lon + 180.0) / 360.0 * n
	py = (1.0 - math.Asinh(math.Tan(lat*math.Pi/180.0))/math.Pi) / 2.0 * n
	return px, py
}

// TileURL renders the tile URL for a source. Known sources are
// "openstreetmap" (aliased "osm") and "esri_world_imagery" (aliased "esri").
func TileURL(t Tile, source string) (string, error) {
	switch source {
	case "openstreetmap", "osm":
		return fmt.Sprintf("https://tile.openstreetmap.org/%d/%d/%d.png", t.Zoom, t.X, t.Y), nil
	case "esri_world_imagery", "esri":
		return fmt.Sprintf("https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/%d/%d/%d", t.Zoom, t.Y, t.X), nil
	default:
		return "", eris.Errorf("basemap: unknown tile source %q", source)
	}
}

// CalculateZoom picks a zoom level. A target resolution (meters per pixel)
// wins when given; otherwise the box's degree-square area sets a base zoom
// which backs off until the tile count fits the budget.
func CalculateZoom(bbox model.BoundingBox, maxTiles int, targetResolution float64) int {
	if maxTiles <= 0 {
		maxTiles = 64
	}

	if targetResolution > 0 {
		centerLat, _ := bbox.Center()
		metersPerPixel := metersPerPixelEquator * math.Cos(centerLat*math.Pi/180.0)
		for zoom := 1; zoom < 20; zoom++ {
			if metersPerPixel/math.Exp2(float64(zoom)) <= targetResolution {
				return zoom
			}
		}
		return 18
	}

	var baseZoom int
	switch area := bbox.Area(); {
	case area < 0.0001:
		baseZoom = 16
	case area < 0.001:
		baseZoom = 15
	case area < 0.01:
		baseZoom = 13
	case area < 0.1:
		baseZoom = 11
	default:
		baseZoom = 9
	}

	for zoom := baseZoom; zoom > baseZoom-5 && zoom >= 1; zoom-- {
		xMin, yMin, xMax, yMax := tileRange(bbox, zoom)
		if (xMax-xMin+1)*(yMax-yMin+1) <= maxTiles {
			return zoom
		}
	}
	return max(1, baseZoom)
}

// tileRange returns the inclusive tile extent covering the box.
func tileRange(bbox model.BoundingBox, zoom int) (xMin, yMin, xMax, yMax int) {
	x0, y0 := Deg2Num(bbox.MinLat, bbox.MinLon, zoom)
	x1, y1 := Deg2Num(bbox.MaxLat, bbox.MaxLon, zoom)
	xMin, xMax = min(x0, x1), max(x0, x1)
	yMin, yMax = min(y0, y1), max(y0, y1)
	return xMin, yMin, xMax, yMax
}
