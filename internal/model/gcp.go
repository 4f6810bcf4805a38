// Package model defines the canonical data types shared across the GCP
// pipeline: ground control points, bounding boxes, and raw source records.
package model

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// GroundControlPoint is the canonical GCP record. Upstream sources use
// inconsistent key names (lat/latitude, rmse/accuracy, id/label); those are
// normalized into this struct once, at ingestion, by each source client.
type GroundControlPoint struct {
	ID                string   `json:"id,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Elevation         float64  `json:"elevation"`
	Accuracy          *float64 `json:"accuracy,omitempty"`
	Type              string   `json:"type,omitempty"`
	Description       string   `json:"description,omitempty"`
	PhotoIdentifiable *bool    `json:"photo_identifiable,omitempty"`
	Source            string   `json:"source,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are present.
// Points without coordinates cannot participate in location-keyed
// deduplication, spatial scoring, or area-membership filtering.
func (g *GroundControlPoint) HasCoordinates() bool {
	return g.Latitude != nil && g.Longitude != nil
}

// Coordinates returns (lat, lon, true) when both are present.
func (g *GroundControlPoint) Coordinates() (float64, float64, bool) {
	if !g.HasCoordinates() {
		return 0, 0, false
	}
	return *g.Latitude, *g.Longitude, true
}

// Label returns the point's ID, or a synthesized positional label when the
// source supplied none. idx is the point's zero-based position in its list.
func (g *GroundControlPoint) Label(idx int) string {
	if g.ID != "" {
		return g.ID
	}
	return fmt.Sprintf("GCP_%d", idx+1)
}

// RawRecord is a loosely-typed record as returned by an external source,
// before alias normalization.
type RawRecord map[string]any

// Normalize converts a raw source record into a canonical point. For each
// concept the first present alias wins: id/label, lat/latitude,
// lon/longitude, z/elevation/altitude, accuracy/rmse/error.
func (r RawRecord) Normalize(source string) GroundControlPoint {
	p := GroundControlPoint{Source: source}

	if s, ok := firstString(r, "id", "label"); ok {
		p.ID = s
	}
	if f, ok := firstFloat(r, "lat", "latitude"); ok {
		p.Latitude = &f
	}
	if f, ok := firstFloat(r, "lon", "lng", "longitude"); ok {
		p.Longitude = &f
	}
	if f, ok := firstFloat(r, "z", "elevation", "altitude"); ok {
		p.Elevation = f
	}
	if f, ok := firstFloat(r, "accuracy", "rmse", "error"); ok {
		p.Accuracy = &f
	}
	if s, ok := firstString(r, "type"); ok {
		p.Type = s
	}
	if s, ok := firstString(r, "description"); ok {
		p.Description = s
	}
	if v, ok := r["photo_identifiable"]; ok {
		if b, ok := v.(bool); ok {
			p.PhotoIdentifiable = &b
		}
	}
	return p
}

func firstString(r RawRecord, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func firstFloat(r RawRecord, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	}
	return 0, false
}

// Float returns a pointer to v. Convenience for building test fixtures and
// normalized records.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// BoundingBox is an axis-aligned latitude/longitude rectangle.
// Invariant: MinLat < MaxLat and MinLon < MaxLon.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Validate checks the ordering invariant on both axes.
func (b BoundingBox) Validate() error {
	if b.MinLat >= b.MaxLat {
		return eris.Errorf("model: bounding box min_lat %f >= max_lat %f", b.MinLat, b.MaxLat)
	}
	if b.MinLon >= b.MaxLon {
		return eris.Errorf("model: bounding box min_lon %f >= max_lon %f", b.MinLon, b.MaxLon)
	}
	return nil
}

// Width returns the longitude extent in degrees.
func (b BoundingBox) Width() float64 { return b.MaxLon - b.MinLon }

// Height returns the latitude extent in degrees.
func (b BoundingBox) Height() float64 { return b.MaxLat - b.MinLat }

// Area returns the planar degree-square area.
func (b BoundingBox) Area() float64 { return b.Width() * b.Height() }

// Diagonal returns the planar degree-space diagonal length.
func (b BoundingBox) Diagonal() float64 {
	return math.Hypot(b.Width(), b.Height())
}

// Center returns the midpoint (lat, lon).
func (b BoundingBox) Center() (float64, float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Contains reports whether the point lies inside or on the boundary.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// String formats as (min_lat, min_lon, max_lat, max_lon).
func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.6f, %.6f, %.6f, %.6f)", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// BoundsOf computes the tight bounding rectangle of the points that carry
// coordinates. ok is false when fewer than one such point exists.
func BoundsOf(points []GroundControlPoint) (BoundingBox, bool) {
	first := true
	var b BoundingBox
	for i := range points {
		lat, lon, ok := points[i].Coordinates()
		if !ok {
			continue
		}
		if first {
			b = BoundingBox{MinLat: lat, MinLon: lon, MaxLat: lat, MaxLon: lon}
			first = false
			continue
		}
		if lat < b.MinLat {
			b.MinLat = lat
		}
		if lat > b.MaxLat {
			b.MaxLat = lat
		}
		if lon < b.MinLon {
			b.MinLon = lon
		}
		if lon > b.MaxLon {
			b.MaxLon = lon
		}
	}
	return b, !first
}
