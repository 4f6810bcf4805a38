// Package area converts search-area inputs (H3 cells, bounding boxes) into
// the geometric forms the pipeline consumes: bounding rectangles, target-area
// polygons, and WRS-2 grid references.
package area

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/uber/h3-go/v4"

	"github.com/sells-group/gcp-support/internal/model"
)

// ErrEmptyCells is returned when a cell set is empty or yields no geometry.
var ErrEmptyCells = eris.New("area: cell set is empty")

// ErrInvalidCell is returned when a cell identifier is not a valid H3 index.
var ErrInvalidCell = eris.New("area: invalid H3 cell")

// CellsToBoundingBox computes the bounding rectangle enclosing the boundary
// vertices of every cell. Any malformed identifier fails the whole call.
func CellsToBoundingBox(cells []string) (model.BoundingBox, error) {
	if len(cells) == 0 {
		return model.BoundingBox{}, ErrEmptyCells
	}

	first := true
	var bbox model.BoundingBox
	for _, c := range cells {
		cell := h3.Cell(h3.IndexFromString(c))
		if !cell.IsValid() {
			return model.BoundingBox{}, eris.Wrapf(ErrInvalidCell, "cell %q", c)
		}
		for _, v := range cell.Boundary() {
			if first {
				bbox = model.BoundingBox{MinLat: v.Lat, MinLon: v.Lng, MaxLat: v.Lat, MaxLon: v.Lng}
				first = false
				continue
			}
			if v.Lat < bbox.MinLat {
				bbox.MinLat = v.Lat
			}
			if v.Lat > bbox.MaxLat {
				bbox.MaxLat = v.Lat
			}
			if v.Lng < bbox.MinLon {
				bbox.MinLon = v.Lng
			}
			if v.Lng > bbox.MaxLon {
				bbox.MaxLon = v.Lng
			}
		}
	}
	return bbox, nil
}

// CellsToPolygon builds one polygon per valid cell and returns the combined
// area as a MultiPolygon. Same-resolution H3 cells never overlap, so the
// multipolygon covers exactly the union of the cells; membership tests
// against it are equivalent to testing against a dissolved union.
// Invalid identifiers are skipped; ErrEmptyCells if nothing remains.
func CellsToPolygon(cells []string) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for _, c := range cells {
		cell := h3.Cell(h3.IndexFromString(c))
		if !cell.IsValid() {
			continue
		}
		boundary := cell.Boundary()
		if len(boundary) < 3 {
			continue
		}

		// Closed ring in (lon, lat) order.
		flat := make([]float64, 0, (len(boundary)+1)*2)
		for _, v := range boundary {
			flat = append(flat, v.Lng, v.Lat)
		}
		flat = append(flat, boundary[0].Lng, boundary[0].Lat)

		poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
		if err := mp.Push(poly); err != nil {
			return nil, eris.Wrapf(err, "area: push cell polygon %q", c)
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, ErrEmptyCells
	}
	return mp, nil
}
