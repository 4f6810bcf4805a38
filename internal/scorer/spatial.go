// Package scorer computes spatial-distribution quality metrics over a set of
// ground control points. Well-spread sets score near 1.0; clustered sets
// score low. All geometry is planar degree-space by design: the scores are
// relative quality signals, not geodetic measurements.
package scorer

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/gcp-support/internal/model"
)

// WarnInsufficientPoints marks a metrics result computed from fewer than two
// points with coordinates. It is a sentinel, not an error: callers must treat
// the zero-valued metrics as a valid result.
const WarnInsufficientPoints = "fewer than 2 points with coordinates; spatial scoring skipped"

const gridSize = 3

// Weights and scaling constants of the composite scores. Calibrated so that
// typical well-distributed sets land near 1.0; tunable, not physical.
const (
	hullWeight  = 0.4
	nnWeight    = 0.3
	gridWeight  = 0.3
	hullScale   = 2.0
	nnScale     = 10.0
	spreadShare = 0.7
	countShare  = 0.3
	countSat    = 10.0
)

// Metrics is an immutable snapshot of the spatial-distribution quality of a
// point set. Computed fresh per invocation, never mutated.
type Metrics struct {
	ConvexHullRatio    float64 `json:"convex_hull_ratio"`
	AvgNearestNeighbor float64 `json:"avg_nearest_neighbor"`
	NormalizedAvgNN    float64 `json:"normalized_avg_nn"`
	GridCoverage       float64 `json:"grid_coverage"`
	SpreadScore        float64 `json:"spread_score"`
	ConfidenceScore    float64 `json:"confidence_score"`
	NumPoints          int     `json:"num_points"`
	Warning            string  `json:"warning,omitempty"`
}

// Score computes distribution metrics for the points that carry coordinates.
// When bbox is nil the tight bounding rectangle of the points is used.
// Fewer than two usable points yields a zero-valued Metrics with Warning set.
func Score(points []model.GroundControlPoint, bbox *model.BoundingBox) Metrics {
	coords := make([][2]float64, 0, len(points)) // (lon, lat)
	for i := range points {
		if lat, lon, ok := points[i].Coordinates(); ok {
			coords = append(coords, [2]float64{lon, lat})
		}
	}

	if len(coords) < 2 {
		return Metrics{NumPoints: len(coords), Warning: WarnInsufficientPoints}
	}

	box := tightBox(coords)
	if bbox != nil {
		box = *bbox
	}

	hullRatio := convexHullRatio(coords, box)
	avgNN, normNN := nearestNeighbor(coords, box)
	coverage := gridCoverage(coords, box)

	spread := hullWeight*math.Min(hullRatio*hullScale, 1.0) +
		nnWeight*math.Min(normNN*nnScale, 1.0) +
		gridWeight*coverage

	confidence := spreadShare*spread +
		countShare*math.Min(float64(len(coords))/countSat, 1.0)

	return Metrics{
		ConvexHullRatio:    hullRatio,
		AvgNearestNeighbor: avgNN,
		NormalizedAvgNN:    normNN,
		GridCoverage:       coverage,
		SpreadScore:        spread,
		ConfidenceScore:    confidence,
		NumPoints:          len(coords),
	}
}

func tightBox(coords [][2]float64) model.BoundingBox {
	b := model.BoundingBox{
		MinLat: coords[0][1], MaxLat: coords[0][1],
		MinLon: coords[0][0], MaxLon: coords[0][0],
	}
	for _, c := range coords[1:] {
		b.MinLon = math.Min(b.MinLon, c[0])
		b.MaxLon = math.Max(b.MaxLon, c[0])
		b.MinLat = math.Min(b.MinLat, c[1])
		b.MaxLat = math.Max(b.MaxLat, c[1])
	}
	return b
}

// convexHullRatio is hull area over bounding-box area, both in degrees².
// Zero when either area degenerates.
func convexHullRatio(coords [][2]float64, box model.BoundingBox) float64 {
	boxArea := box.Area()
	if boxArea <= 0 {
		return 0
	}

	hull := convexHull(coords)
	if len(hull) < 3 {
		return 0
	}

	flat := make([]float64, 0, (len(hull)+1)*2)
	for _, c := range hull {
		flat = append(flat, c[0], c[1])
	}
	flat = append(flat, hull[0][0], hull[0][1])
	// Area is signed by ring orientation; the ratio only needs magnitude.
	hullArea := math.Abs(geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).Area())

	if hullArea <= 0 {
		return 0
	}
	return hullArea / boxArea
}

// convexHull computes the hull via the Andrew monotone chain, returned in
// counter-clockwise order without the closing vertex. Collinear input
// collapses to fewer than 3 vertices.
func convexHull(coords [][2]float64) [][2]float64 {
	pts := make([][2]float64, len(coords))
	copy(pts, coords)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	if len(pts) < 3 {
		return pts
	}

	cross := func(o, a, b [2]float64) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	var lower [][2]float64
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	var upper [][2]float64
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// nearestNeighbor computes the mean over points of the distance to each
// point's nearest other point, raw and normalized by the bbox diagonal.
// Full pairwise matrix with the self-distance forced to +Inf.
func nearestNeighbor(coords [][2]float64, box model.BoundingBox) (avg, normalized float64) {
	n := len(coords)
	minDists := make([]float64, n)
	row := make([]float64, n)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				row[j] = math.Inf(1)
				continue
			}
			row[j] = math.Hypot(coords[i][0]-coords[j][0], coords[i][1]-coords[j][1])
		}
		minDists[i] = floats.Min(row)
	}

	avg = stat.Mean(minDists, nil)
	if diag := box.Diagonal(); diag > 0 {
		normalized = avg / diag
	}
	return avg, normalized
}

// gridCoverage partitions the box into a 3x3 grid and returns the fraction
// of cells occupied by at least one point. A degenerate box dimension
// defaults its step to 1.0 so every point lands in column/row zero.
func gridCoverage(coords [][2]float64, box model.BoundingBox) float64 {
	lonStep := box.Width() / gridSize
	if lonStep <= 0 {
		lonStep = 1.0
	}
	latStep := box.Height() / gridSize
	if latStep <= 0 {
		latStep = 1.0
	}

	occupied := make(map[[2]int]struct{}, gridSize*gridSize)
	for _, c := range coords {
		col := int((c[0] - box.MinLon) / lonStep)
		row := int((c[1] - box.MinLat) / latStep)
		col = clampCell(col)
		row = clampCell(row)
		occupied[[2]int{col, row}] = struct{}{}
	}

	return float64(len(occupied)) / float64(gridSize*gridSize)
}

func clampCell(v int) int {
	if v < 0 {
		return 0
	}
	if v >= gridSize {
		return gridSize - 1
	}
	return v
}
