package area

import (
	"math"
	"sort"

	"github.com/sells-group/gcp-support/internal/model"
)

// GridRef identifies a WRS-2 orbital path/row cell.
type GridRef struct {
	Path int `json:"path"`
	Row  int `json:"row"`
}

// LatLonToGridRef maps a coordinate to an approximate WRS-2 path/row using a
// linear formula. The real system is defined by an authoritative shapefile;
// this stays deliberately coarse and is compensated for by the neighbor
// expansion in BoundingBoxToGridRefs.
func LatLonToGridRef(lat, lon float64) GridRef {
	// Paths number 1-233 eastward from 180°W, ~7.5° apart.
	path := int(math.Floor((180.0+lon)/7.5)) + 1
	if path < 1 {
		path = 233 + path
	} else if path > 233 {
		path = path - 233
	}

	// Rows number 1-248 from 80° toward the equator in each hemisphere.
	var row int
	if lat >= 0 {
		row = int(math.Floor((80.0-lat)/0.05)) + 1
	} else {
		row = int(math.Floor((80.0+math.Abs(lat))/0.05)) + 1
	}
	if row < 1 {
		row = 1
	} else if row > 248 {
		row = 248
	}

	return GridRef{Path: path, Row: row}
}

// BoundingBoxToGridRefs returns the grid references covering a bounding box:
// the refs of the four corners and the center, expanded with all eight
// neighbors of each to guard against edge-of-cell coverage gaps.
// The result is sorted by (path, row).
func BoundingBoxToGridRefs(bbox model.BoundingBox) []GridRef {
	centerLat, centerLon := bbox.Center()
	anchors := [][2]float64{
		{bbox.MinLat, bbox.MinLon},
		{bbox.MinLat, bbox.MaxLon},
		{bbox.MaxLat, bbox.MinLon},
		{bbox.MaxLat, bbox.MaxLon},
		{centerLat, centerLon},
	}

	seen := make(map[GridRef]struct{})
	for _, a := range anchors {
		seen[LatLonToGridRef(a[0], a[1])] = struct{}{}
	}

	// Expand only the anchor refs, not refs added by the expansion itself.
	base := make([]GridRef, 0, len(seen))
	for ref := range seen {
		base = append(base, ref)
	}
	for _, ref := range base {
		for dp := -1; dp <= 1; dp++ {
			for dr := -1; dr <= 1; dr++ {
				n := GridRef{Path: ref.Path + dp, Row: ref.Row + dr}
				if n.Path >= 1 && n.Path <= 233 && n.Row >= 1 && n.Row <= 248 {
					seen[n] = struct{}{}
				}
			}
		}
	}

	refs := make([]GridRef, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Path != refs[j].Path {
			return refs[i].Path < refs[j].Path
		}
		return refs[i].Row < refs[j].Row
	})
	return refs
}
