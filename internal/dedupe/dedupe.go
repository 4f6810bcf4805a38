// Package dedupe removes duplicate ground control points across sources.
package dedupe

import (
	"fmt"
	"math"

	"github.com/sells-group/gcp-support/internal/model"
)

// Points returns a new slice retaining the first-seen occurrence of each
// point, in original order. The dedup key is the point ID when present;
// otherwise the (lat, lon) pair rounded to 6 decimal places (~0.11 m at the
// equator). Points with neither an ID nor coordinates cannot be keyed and
// pass through unchanged.
func Points(in []model.GroundControlPoint) []model.GroundControlPoint {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.GroundControlPoint, 0, len(in))

	for i := range in {
		key, ok := keyOf(&in[i])
		if ok {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, in[i])
	}
	return out
}

func keyOf(p *model.GroundControlPoint) (string, bool) {
	if p.ID != "" {
		return "id:" + p.ID, true
	}
	if lat, lon, ok := p.Coordinates(); ok {
		return fmt.Sprintf("loc:%.6f,%.6f", round6(lat), round6(lon)), true
	}
	return "", false
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
