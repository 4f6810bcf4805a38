package source

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/model"
)

// m2mBaseURL is the USGS Machine-to-Machine API. The legacy login endpoint
// was retired in February 2025; authentication goes through login-token.
const m2mBaseURL = "https://m2m.cr.usgs.gov/api/api/json/stable"

const usgsDefaultDataset = "NAIP"

// USGSOptions configures the USGS client.
type USGSOptions struct {
	BaseURL          string
	Username         string
	ApplicationToken string
	Dataset          string
	Timeout          time.Duration
	HTTPClient       *http.Client

	// Seed drives the synthetic fallback so degraded runs stay reproducible.
	Seed uint64
}

// USGSClient queries the USGS M2M API for control points. Authentication
// happens lazily on the first search. When credentials are missing, the API
// rejects the search, or scenes carry no usable point data, the client
// degrades to synthetic points rather than failing the whole run.
type USGSClient struct {
	opts   USGSOptions
	client *http.Client
	gen    *Generator

	mu     sync.Mutex
	apiKey string
}

// NewUSGS creates a USGS M2M client.
func NewUSGS(opts USGSOptions) *USGSClient {
	if opts.BaseURL == "" {
		opts.BaseURL = m2mBaseURL
	}
	if opts.Dataset == "" {
		opts.Dataset = usgsDefaultDataset
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &USGSClient{
		opts:   opts,
		client: client,
		gen:    NewGenerator(opts.Seed),
	}
}

func (c *USGSClient) Name() string { return "USGS" }

// m2mEnvelope is the common M2M response wrapper.
type m2mEnvelope struct {
	ErrorCode    string          `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
	Data         json.RawMessage `json:"data"`
}

type m2mSearchData struct {
	Results []map[string]any `json:"results"`
}

// FindByBBox searches the configured dataset with an mbr spatial filter and
// extracts control points from the returned scenes.
func (c *USGSClient) FindByBBox(ctx context.Context, bbox model.BoundingBox, maxResults int) ([]model.GroundControlPoint, error) {
	req := map[string]any{
		"datasetName": c.opts.Dataset,
		"spatialFilter": map[string]any{
			"filterType": "mbr",
			"lowerLeft":  map[string]float64{"latitude": bbox.MinLat, "longitude": bbox.MinLon},
			"upperRight": map[string]float64{"latitude": bbox.MaxLat, "longitude": bbox.MaxLon},
		},
		"maxResults": maxResults,
	}

	points, ok := c.search(ctx, req)
	if !ok {
		return c.syntheticBBox(bbox, maxResults), nil
	}
	return points, nil
}

// FindByGridRef searches by WRS-2 path/row.
func (c *USGSClient) FindByGridRef(ctx context.Context, ref area.GridRef, maxResults int) ([]model.GroundControlPoint, error) {
	req := map[string]any{
		"datasetName": c.opts.Dataset,
		"sceneFilter": map[string]any{
			"acquisitionFilter": map[string]string{
				"start": "1900-01-01",
				"end":   "2100-01-01",
			},
		},
		"spatialFilter": map[string]any{
			"filterType": "wrs2",
			"path":       ref.Path,
			"row":        ref.Row,
		},
		"maxResults": maxResults,
	}

	points, ok := c.search(ctx, req)
	if !ok {
		zap.L().Warn("source: usgs grid search degraded to synthetic data",
			zap.Int("path", ref.Path),
			zap.Int("row", ref.Row),
		)
		return c.gen.ForGridRef(ref, min(maxResults, 5), "USGS"), nil
	}
	return points, nil
}

// search runs one scene-search round trip. The second return value reports
// whether real data came back; false means the caller should fall back.
func (c *USGSClient) search(ctx context.Context, req map[string]any) ([]model.GroundControlPoint, bool) {
	key, err := c.authenticate(ctx)
	if err != nil {
		zap.L().Warn("source: usgs authentication failed, using synthetic data", zap.Error(err))
		return nil, false
	}
	req["apiKey"] = key

	var env m2mEnvelope
	if err := c.post(ctx, "scene-search", req, &env); err != nil {
		zap.L().Warn("source: usgs scene search failed, using synthetic data", zap.Error(err))
		return nil, false
	}
	if env.ErrorCode != "" {
		zap.L().Warn("source: usgs scene search rejected, using synthetic data",
			zap.String("error_code", env.ErrorCode),
			zap.String("error_message", env.ErrorMessage),
		)
		return nil, false
	}

	var data m2mSearchData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			zap.L().Warn("source: usgs response malformed, using synthetic data", zap.Error(err))
			return nil, false
		}
	}
	if len(data.Results) == 0 {
		zap.L().Warn("source: usgs returned no scenes, using synthetic data",
			zap.String("dataset", c.opts.Dataset),
		)
		return nil, false
	}

	points := extractScenePoints(data.Results)
	if len(points) == 0 {
		zap.L().Warn("source: usgs scenes carried no point data, using synthetic data",
			zap.Int("scenes", len(data.Results)),
		)
		return nil, false
	}
	zap.L().Info("source: usgs scenes yielded control points",
		zap.Int("scenes", len(data.Results)),
		zap.Int("points", len(points)),
	)
	return points, true
}

// authenticate exchanges the application token for an API key via
// login-token. The key is cached for the lifetime of the client.
func (c *USGSClient) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	if c.opts.Username == "" || c.opts.ApplicationToken == "" {
		return "", eris.New("source: usgs credentials missing (username and application token required)")
	}

	var env m2mEnvelope
	err := c.post(ctx, "login-token", map[string]string{
		"username": c.opts.Username,
		"token":    c.opts.ApplicationToken,
	}, &env)
	if err != nil {
		return "", err
	}
	if env.ErrorCode != "" {
		return "", eris.Errorf("source: usgs login rejected: %s (%s)", env.ErrorMessage, env.ErrorCode)
	}

	var key string
	if err := json.Unmarshal(env.Data, &key); err != nil || key == "" {
		return "", eris.New("source: usgs login returned no API key")
	}
	c.apiKey = key
	zap.L().Info("source: authenticated with usgs m2m api")
	return key, nil
}

func (c *USGSClient) post(ctx context.Context, endpoint string, payload any, out *m2mEnvelope) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "source: marshal %s request", endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return eris.Wrapf(err, "source: build %s request", endpoint)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "source: usgs %s", endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("source: usgs %s returned %d", endpoint, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "source: read %s response", endpoint)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrapf(err, "source: decode %s response", endpoint)
	}
	return nil
}

func (c *USGSClient) syntheticBBox(bbox model.BoundingBox, maxResults int) []model.GroundControlPoint {
	count := maxResults
	if count <= 0 || count > 100 {
		count = 10
	}
	return c.gen.InBBox(bbox, count, 0.1, 2.0, "USGS")
}

// extractScenePoints pulls point records out of scene metadata. Scenes that
// carry explicit coordinates normalize directly; otherwise the centroid of
// the scene's spatial coverage polygon stands in.
func extractScenePoints(scenes []map[string]any) []model.GroundControlPoint {
	var points []model.GroundControlPoint
	for _, scene := range scenes {
		rec := model.RawRecord(scene)
		p := rec.Normalize("USGS")
		if !p.HasCoordinates() {
			lat, lon, ok := sceneCentroid(scene)
			if !ok {
				continue
			}
			p.Latitude = model.Float(lat)
			p.Longitude = model.Float(lon)
			if p.Type == "" {
				p.Type = "scene center"
			}
		}
		if p.ID == "" {
			if id, _ := scene["entityId"].(string); id != "" {
				p.ID = id
			}
		}
		points = append(points, p)
	}
	return points
}

// sceneCentroid averages the vertices of a GeoJSON-style spatialCoverage or
// spatialBounds polygon.
func sceneCentroid(scene map[string]any) (lat, lon float64, ok bool) {
	for _, key := range []string{"spatialCoverage", "spatialBounds"} {
		cov, found := scene[key].(map[string]any)
		if !found {
			continue
		}
		coords, found := cov["coordinates"].([]any)
		if !found || len(coords) == 0 {
			continue
		}
		ring, found := coords[0].([]any)
		if !found {
			continue
		}

		var sumLat, sumLon float64
		n := 0
		for _, v := range ring {
			pair, found := v.([]any)
			if !found || len(pair) < 2 {
				continue
			}
			x, ok1 := toFloat(pair[0])
			y, ok2 := toFloat(pair[1])
			if !ok1 || !ok2 {
				continue
			}
			sumLon += x
			sumLat += y
			n++
		}
		if n > 0 {
			return sumLat / float64(n), sumLon / float64(n), true
		}
	}
	return 0, 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case int:
		return float64(t), true
	}
	return math.NaN(), false
}
