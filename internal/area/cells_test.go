package area

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two adjacent resolution-9 cells over downtown San Francisco.
var sfCells = []string{"8928308280fffff", "8928308280bffff"}

func TestCellsToBoundingBox(t *testing.T) {
	bbox, err := CellsToBoundingBox(sfCells)
	require.NoError(t, err)
	require.NoError(t, bbox.Validate())

	// Both cells sit near (37.776, -122.418); the box must cover it.
	assert.True(t, bbox.Contains(37.7764, -122.4188))
	assert.Less(t, bbox.Width(), 0.02)
	assert.Less(t, bbox.Height(), 0.02)
}

func TestCellsToBoundingBox_SingleCellInsideCombined(t *testing.T) {
	combined, err := CellsToBoundingBox(sfCells)
	require.NoError(t, err)

	single, err := CellsToBoundingBox(sfCells[:1])
	require.NoError(t, err)

	assert.GreaterOrEqual(t, single.MinLat, combined.MinLat)
	assert.LessOrEqual(t, single.MaxLat, combined.MaxLat)
	assert.GreaterOrEqual(t, single.MinLon, combined.MinLon)
	assert.LessOrEqual(t, single.MaxLon, combined.MaxLon)
}

func TestCellsToBoundingBox_Empty(t *testing.T) {
	_, err := CellsToBoundingBox(nil)
	assert.True(t, eris.Is(err, ErrEmptyCells))
}

func TestCellsToBoundingBox_InvalidCell(t *testing.T) {
	_, err := CellsToBoundingBox([]string{"8928308280fffff", "not-a-cell"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidCell))
}

func TestCellsToPolygon(t *testing.T) {
	mp, err := CellsToPolygon(sfCells)
	require.NoError(t, err)
	assert.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 4326, mp.SRID())

	// Hexagon rings close: first and last vertex coincide.
	ring := mp.Polygon(0).LinearRing(0)
	coords := ring.FlatCoords()
	require.GreaterOrEqual(t, len(coords), 14)
	assert.Equal(t, coords[0], coords[len(coords)-2])
	assert.Equal(t, coords[1], coords[len(coords)-1])
}

func TestCellsToPolygon_SkipsInvalid(t *testing.T) {
	mp, err := CellsToPolygon([]string{"garbage", "8928308280fffff"})
	require.NoError(t, err)
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestCellsToPolygon_AllInvalid(t *testing.T) {
	_, err := CellsToPolygon([]string{"garbage"})
	assert.True(t, eris.Is(err, ErrEmptyCells))
}
