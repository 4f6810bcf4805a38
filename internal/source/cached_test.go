package source

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/model"
	"github.com/sells-group/gcp-support/internal/store"
)

// memStore is an in-memory store.Store for exercising the cache wrapper.
type memStore struct {
	entries map[string][]model.GroundControlPoint
	getErr  error
	putErr  error
	puts    int
}

func newMemStore() *memStore {
	return &memStore{entries: map[string][]model.GroundControlPoint{}}
}

func (s *memStore) GetQuery(_ context.Context, key string) ([]model.GroundControlPoint, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	points, ok := s.entries[key]
	return points, ok, nil
}

func (s *memStore) PutQuery(_ context.Context, key string, points []model.GroundControlPoint, _ time.Duration) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.entries[key] = points
	return nil
}

func (s *memStore) PurgeExpired(context.Context) (int64, error) { return 0, nil }
func (s *memStore) Migrate(context.Context) error               { return nil }
func (s *memStore) Close() error                                { return nil }

type countingSource struct {
	points []model.GroundControlPoint
	err    error
	calls  int
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) FindByBBox(context.Context, model.BoundingBox, int) ([]model.GroundControlPoint, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

// gridCountingSource is a countingSource that also answers grid-ref queries.
type gridCountingSource struct {
	countingSource
	gridCalls int
}

func (s *gridCountingSource) FindByGridRef(context.Context, area.GridRef, int) ([]model.GroundControlPoint, error) {
	s.gridCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

var cacheBBox = model.BoundingBox{MinLat: 30, MinLon: -98, MaxLat: 31, MaxLon: -97}

func TestCached_MissThenHit(t *testing.T) {
	inner := &countingSource{points: []model.GroundControlPoint{{ID: "A"}, {ID: "B"}}}
	st := newMemStore()
	c := NewCached(inner, st, time.Hour)

	first, err := c.FindByBBox(context.Background(), cacheBBox, 50)
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, st.puts)

	second, err := c.FindByBBox(context.Background(), cacheBBox, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "hit must not reach the wrapped source")
}

func TestCached_KeyIncludesMaxResults(t *testing.T) {
	inner := &countingSource{points: []model.GroundControlPoint{{ID: "A"}}}
	c := NewCached(inner, newMemStore(), time.Hour)

	_, err := c.FindByBBox(context.Background(), cacheBBox, 50)
	require.NoError(t, err)
	_, err = c.FindByBBox(context.Background(), cacheBBox, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "different limits are different cache entries")
}

func TestCached_LookupFailureIsMiss(t *testing.T) {
	inner := &countingSource{points: []model.GroundControlPoint{{ID: "A"}}}
	st := newMemStore()
	st.getErr = eris.New("db down")
	c := NewCached(inner, st, time.Hour)

	points, err := c.FindByBBox(context.Background(), cacheBBox, 50)
	require.NoError(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestCached_WriteFailureDoesNotFailQuery(t *testing.T) {
	inner := &countingSource{points: []model.GroundControlPoint{{ID: "A"}}}
	st := newMemStore()
	st.putErr = eris.New("disk full")
	c := NewCached(inner, st, time.Hour)

	points, err := c.FindByBBox(context.Background(), cacheBBox, 50)
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestCached_InnerErrorPropagates(t *testing.T) {
	inner := &countingSource{err: eris.New("upstream down")}
	st := newMemStore()
	c := NewCached(inner, st, time.Hour)

	_, err := c.FindByBBox(context.Background(), cacheBBox, 50)
	assert.Error(t, err)
	assert.Zero(t, st.puts, "failures are never cached")
}

func TestCached_Name(t *testing.T) {
	c := NewCached(&countingSource{}, newMemStore(), 0)
	assert.Equal(t, "counting", c.Name())
}

func TestCached_PreservesGridCapability(t *testing.T) {
	plain := NewCached(&countingSource{}, newMemStore(), 0)
	_, ok := plain.(GridSource)
	assert.False(t, ok, "wrapping a bbox-only source must not invent grid support")

	grid := NewCached(&gridCountingSource{}, newMemStore(), 0)
	_, ok = grid.(GridSource)
	assert.True(t, ok, "wrapping a grid-capable source must keep it grid-capable")
}

func TestCached_GridRefMissThenHit(t *testing.T) {
	inner := &gridCountingSource{countingSource: countingSource{points: []model.GroundControlPoint{{ID: "G"}}}}
	st := newMemStore()
	c := NewCached(inner, st, time.Hour).(GridSource)

	ref := area.GridRef{Path: 27, Row: 39}
	first, err := c.FindByGridRef(context.Background(), ref, 50)
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Equal(t, 1, inner.gridCalls)
	assert.Equal(t, 1, st.puts)

	second, err := c.FindByGridRef(context.Background(), ref, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.gridCalls, "hit must not reach the wrapped source")
}

func TestCached_GridAndBBoxEntriesAreDistinct(t *testing.T) {
	inner := &gridCountingSource{countingSource: countingSource{points: []model.GroundControlPoint{{ID: "G"}}}}
	st := newMemStore()
	c := NewCached(inner, st, time.Hour).(GridSource)

	_, err := c.FindByBBox(context.Background(), cacheBBox, 50)
	require.NoError(t, err)
	_, err = c.FindByGridRef(context.Background(), area.GridRef{Path: 27, Row: 39}, 50)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, inner.gridCalls, "a bbox entry must never satisfy a grid query")
	assert.Equal(t, 2, st.puts)
}

func TestQueryKey(t *testing.T) {
	key := store.QueryKey("USGS", cacheBBox, 50)
	assert.Equal(t, "USGS:30.000000,-98.000000,31.000000,-97.000000:50", key)
}

func TestGridQueryKey(t *testing.T) {
	key := store.GridQueryKey("USGS", area.GridRef{Path: 27, Row: 39}, 50)
	assert.Equal(t, "USGS:wrs2:27,39:50", key)
}
