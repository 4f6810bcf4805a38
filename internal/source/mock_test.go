package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/model"
)

func TestGenerator_InBBox(t *testing.T) {
	bbox := model.BoundingBox{MinLat: 30.0, MinLon: -98.0, MaxLat: 31.0, MaxLon: -97.0}
	points := NewGenerator(42).InBBox(bbox, 25, 0.1, 2.0, "USGS")
	require.Len(t, points, 25)

	for i, p := range points {
		lat, lon, ok := p.Coordinates()
		require.True(t, ok)
		assert.True(t, bbox.Contains(lat, lon), "point %d outside box", i)

		require.NotNil(t, p.Accuracy)
		assert.GreaterOrEqual(t, *p.Accuracy, 0.1)
		assert.Less(t, *p.Accuracy, 2.0)

		assert.Equal(t, "USGS", p.Source)
		assert.Contains(t, p.ID, "USGS_GCP_")
		assert.NotEmpty(t, p.Type)
		require.NotNil(t, p.PhotoIdentifiable)
		assert.True(t, *p.PhotoIdentifiable)
	}

	assert.Equal(t, "USGS_GCP_0001", points[0].ID)
	assert.Equal(t, "USGS_GCP_0025", points[24].ID)
}

func TestGenerator_Deterministic(t *testing.T) {
	bbox := model.BoundingBox{MinLat: 30.0, MinLon: -98.0, MaxLat: 31.0, MaxLon: -97.0}

	first := NewGenerator(7).InBBox(bbox, 10, 0.1, 2.0, "USGS")
	second := NewGenerator(7).InBBox(bbox, 10, 0.1, 2.0, "USGS")
	assert.Equal(t, first, second)

	other := NewGenerator(8).InBBox(bbox, 10, 0.1, 2.0, "USGS")
	assert.NotEqual(t, first, other)
}

func TestGenerator_ForGridRef(t *testing.T) {
	ref := area.GridRef{Path: 25, Row: 40}
	points := NewGenerator(1).ForGridRef(ref, 5, "USGS")
	require.Len(t, points, 5)

	// Path 25, row 40 maps back to (lon 0, lat ~78.05) plus a 0.1 degree pad.
	baseLon := -180.0 + float64(ref.Path-1)*7.5
	baseLat := 80.0 - float64(ref.Row-1)*0.05
	for _, p := range points {
		lat, lon, ok := p.Coordinates()
		require.True(t, ok)
		assert.InDelta(t, baseLat, lat, 0.1)
		assert.InDelta(t, baseLon, lon, 0.1)
	}
}
