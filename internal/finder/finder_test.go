package finder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/filter"
	"github.com/sells-group/gcp-support/internal/model"
	"github.com/sells-group/gcp-support/internal/source"
)

// fakeSource records calls and serves canned points.
type fakeSource struct {
	mu        sync.Mutex
	name      string
	points    []model.GroundControlPoint
	err       error
	bboxCalls int
	gridCalls []area.GridRef
	gridFn    func(ref area.GridRef) []model.GroundControlPoint
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) FindByBBox(_ context.Context, _ model.BoundingBox, _ int) ([]model.GroundControlPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bboxCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

func (s *fakeSource) FindByGridRef(_ context.Context, ref area.GridRef, _ int) ([]model.GroundControlPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gridCalls = append(s.gridCalls, ref)
	if s.err != nil {
		return nil, s.err
	}
	if s.gridFn != nil {
		return s.gridFn(ref), nil
	}
	return nil, nil
}

func pt(id string, lat, lon float64) model.GroundControlPoint {
	return model.GroundControlPoint{ID: id, Latitude: model.Float(lat), Longitude: model.Float(lon)}
}

// spreadPoints produces n unique points scattered across the box so the
// filter's scoring never collapses them.
func spreadPoints(prefix string, n int, bbox model.BoundingBox) []model.GroundControlPoint {
	points := make([]model.GroundControlPoint, 0, n)
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n)
		points = append(points, pt(
			prefix+"_"+string(rune('A'+i)),
			bbox.MinLat+frac*bbox.Height(),
			bbox.MinLon+frac*bbox.Width(),
		))
	}
	return points
}

// memStore is a threadsafe in-memory store.Store; grid fan-out workers write
// to it concurrently.
type memStore struct {
	mu      sync.Mutex
	entries map[string][]model.GroundControlPoint
}

func newMemStore() *memStore {
	return &memStore{entries: map[string][]model.GroundControlPoint{}}
}

func (s *memStore) GetQuery(_ context.Context, key string) ([]model.GroundControlPoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	points, ok := s.entries[key]
	return points, ok, nil
}

func (s *memStore) PutQuery(_ context.Context, key string, points []model.GroundControlPoint, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = points
	return nil
}

func (s *memStore) PurgeExpired(context.Context) (int64, error) { return 0, nil }
func (s *memStore) Migrate(context.Context) error               { return nil }
func (s *memStore) Close() error                                { return nil }

var testBBox = model.BoundingBox{MinLat: 30.0, MinLon: -98.0, MaxLat: 31.0, MaxLon: -97.0}

func TestFind_NoSearchArea(t *testing.T) {
	f := New(&fakeSource{name: "primary"}, nil, Config{})
	_, err := f.Find(context.Background(), Request{})
	assert.True(t, eris.Is(err, ErrNoSearchArea))
}

func TestFind_InvalidBBox(t *testing.T) {
	f := New(&fakeSource{name: "primary"}, nil, Config{})
	bad := model.BoundingBox{MinLat: 31, MinLon: -97, MaxLat: 30, MaxLon: -98}
	_, err := f.Find(context.Background(), Request{BBox: &bad})
	assert.Error(t, err)
}

func TestFind_PrimaryOnlyAboveThreshold(t *testing.T) {
	primary := &fakeSource{name: "primary", points: spreadPoints("P", 12, testBBox)}
	secondary := &fakeSource{name: "secondary", points: spreadPoints("S", 5, testBBox)}

	f := New(primary, secondary, Config{Threshold: 10, MaxResults: 100})
	res, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)

	assert.Equal(t, 1, primary.bboxCalls)
	assert.Zero(t, secondary.bboxCalls, "secondary must not be queried above threshold")
	assert.Len(t, res.Points, 12)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, testBBox, res.BBox)
}

func TestFind_ThresholdFallback(t *testing.T) {
	primary := &fakeSource{name: "primary", points: spreadPoints("P", 3, testBBox)}
	secondary := &fakeSource{name: "secondary", points: spreadPoints("S", 8, testBBox)}

	f := New(primary, secondary, Config{Threshold: 10, MaxResults: 100})
	res, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)

	assert.Equal(t, 1, secondary.bboxCalls)
	assert.Len(t, res.Points, 11)
}

func TestFind_ThresholdCountsUniquePoints(t *testing.T) {
	// Ten raw points but only three unique IDs: fallback must fire.
	dups := make([]model.GroundControlPoint, 0, 10)
	base := spreadPoints("P", 3, testBBox)
	for i := 0; i < 10; i++ {
		dups = append(dups, base[i%3])
	}
	primary := &fakeSource{name: "primary", points: dups}
	secondary := &fakeSource{name: "secondary", points: spreadPoints("S", 8, testBBox)}

	f := New(primary, secondary, Config{Threshold: 10, MaxResults: 100})
	res, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)

	assert.Equal(t, 1, secondary.bboxCalls)
	assert.Len(t, res.Points, 11)
}

func TestFind_PrimaryFailureDegrades(t *testing.T) {
	primary := &fakeSource{name: "primary", err: eris.New("upstream down")}
	secondary := &fakeSource{name: "secondary", points: spreadPoints("S", 6, testBBox)}

	f := New(primary, secondary, Config{Threshold: 10, MaxResults: 100})
	res, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err, "source failure must not fail the search")
	assert.Len(t, res.Points, 6)
}

func TestFind_BothSourcesFailYieldsEmptyResult(t *testing.T) {
	primary := &fakeSource{name: "primary", err: eris.New("down")}
	secondary := &fakeSource{name: "secondary", err: eris.New("also down")}

	f := New(primary, secondary, Config{Threshold: 10})
	res, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)
	assert.Empty(t, res.Points)
	assert.NotEmpty(t, res.Metrics.Warning)
}

func TestFind_NilSecondary(t *testing.T) {
	primary := &fakeSource{name: "primary", points: spreadPoints("P", 2, testBBox)}

	f := New(primary, nil, Config{Threshold: 10})
	res, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)
	assert.Len(t, res.Points, 2)
}

func TestFind_GridFanOut(t *testing.T) {
	refs := area.BoundingBoxToGridRefs(testBBox)
	require.NotEmpty(t, refs)

	primary := &fakeSource{
		name:   "primary",
		points: spreadPoints("P", 12, testBBox),
		gridFn: func(ref area.GridRef) []model.GroundControlPoint {
			// One in-box point per ref, keyed so refs don't collide.
			lat := testBBox.MinLat + float64(ref.Row%10)*0.01
			lon := testBBox.MinLon + float64(ref.Path%10)*0.01
			return []model.GroundControlPoint{pt(refString(ref), lat, lon)}
		},
	}

	f := New(primary, nil, Config{Threshold: 10, UseGridRefs: true})
	res, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)

	assert.Len(t, primary.gridCalls, len(refs), "one grid query per derived ref")

	again, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)
	assert.Equal(t, ids(res.Points), ids(again.Points), "concatenation order is deterministic")
}

func TestFind_GridFanOutWithCachedPrimary(t *testing.T) {
	refs := area.BoundingBoxToGridRefs(testBBox)
	primary := &fakeSource{name: "primary", points: spreadPoints("P", 12, testBBox)}

	f := New(source.NewCached(primary, newMemStore(), time.Hour), nil, Config{Threshold: 10, UseGridRefs: true})
	_, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)
	assert.Len(t, primary.gridCalls, len(refs), "caching the primary must not drop grid queries")

	_, err = f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)
	assert.Len(t, primary.gridCalls, len(refs), "repeat run is served from the cache")
	assert.Equal(t, 1, primary.bboxCalls)
}

func TestFind_GridFailuresDegrade(t *testing.T) {
	primary := &fakeSource{name: "primary", err: eris.New("down")}

	f := New(primary, nil, Config{Threshold: 10, UseGridRefs: true})
	res, err := f.Find(context.Background(), Request{BBox: &testBBox})
	require.NoError(t, err)
	assert.Empty(t, res.Points)
}

func TestFind_CellsRequest(t *testing.T) {
	primary := &fakeSource{name: "primary"}
	f := New(primary, nil, Config{Threshold: 10})

	res, err := f.Find(context.Background(), Request{Cells: []string{"8928308280fffff"}})
	require.NoError(t, err)
	require.NoError(t, res.BBox.Validate())
	assert.True(t, res.BBox.Contains(37.7764, -122.4188))
}

func TestFind_CellsRequestInvalidCell(t *testing.T) {
	f := New(&fakeSource{name: "primary"}, nil, Config{})
	_, err := f.Find(context.Background(), Request{Cells: []string{"nope"}})
	assert.Error(t, err)
}

func TestFind_WellDistributedSurveySet(t *testing.T) {
	// A 5x4 lattice of accurate building-corner points spanning the box
	// survives strict filtering in full and scores as a confident set.
	box := model.BoundingBox{MinLat: 30.0, MinLon: -98.0, MaxLat: 30.4, MaxLon: -97.6}
	points := make([]model.GroundControlPoint, 0, 20)
	for i := 0; i < 5; i++ {
		for j := 0; j < 4; j++ {
			p := pt(fmt.Sprintf("SURVEY_%02d", len(points)+1),
				box.MinLat+box.Height()*float64(i)/4,
				box.MinLon+box.Width()*float64(j)/3,
			)
			p.Accuracy = model.Float(0.5)
			p.Type = "building corner"
			points = append(points, p)
		}
	}

	primary := &fakeSource{name: "primary", points: points}
	f := New(primary, nil, Config{
		Threshold: 10,
		Filter:    filter.Config{MinAccuracy: 1.0, RequirePhotoIdentifiable: true},
	})

	res, err := f.Find(context.Background(), Request{BBox: &box})
	require.NoError(t, err)
	assert.Len(t, res.Points, 20, "every lattice point passes the filters")
	assert.Greater(t, res.Metrics.ConfidenceScore, 0.5)
}

func TestNew_Defaults(t *testing.T) {
	f := New(&fakeSource{name: "primary"}, nil, Config{})
	assert.Equal(t, defaultThreshold, f.cfg.Threshold)
	assert.Equal(t, defaultMaxResults, f.cfg.MaxResults)
}

func refString(ref area.GridRef) string {
	return "grid_" + string(rune('a'+ref.Path%26)) + string(rune('a'+ref.Row%26))
}

func ids(points []model.GroundControlPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.ID
	}
	return out
}
