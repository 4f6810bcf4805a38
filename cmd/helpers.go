package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/filter"
	"github.com/sells-group/gcp-support/internal/finder"
	"github.com/sells-group/gcp-support/internal/manifest"
	"github.com/sells-group/gcp-support/internal/model"
	"github.com/sells-group/gcp-support/internal/source"
	"github.com/sells-group/gcp-support/internal/store"
)

// initStore opens the configured query cache. Driver "none" returns nil,
// which disables caching.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "none", "":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "gcp-cache.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newFinder wires sources, cache, and filter settings into a Finder.
// Flag values override config; a negative flag means "not set".
func newFinder(st store.Store, opts findOptions) *finder.Finder {
	primary := source.Source(source.NewUSGS(source.USGSOptions{
		BaseURL:          cfg.USGS.BaseURL,
		Username:         cfg.USGS.Username,
		ApplicationToken: cfg.USGS.ApplicationToken,
		Dataset:          cfg.USGS.Dataset,
	}))
	secondary := source.Source(source.NewNOAA(source.NOAAOptions{
		ArchivePath: cfg.NOAA.ArchivePath,
		ArchiveURL:  cfg.NOAA.ArchiveURL,
		CacheDir:    cfg.NOAA.CacheDir,
	}))

	if st != nil {
		ttl := time.Duration(cfg.Store.TTLHours) * time.Hour
		primary = source.NewCached(primary, st, ttl)
		secondary = source.NewCached(secondary, st, ttl)
	}
	if opts.noSecondary {
		secondary = nil
	}

	fcfg := filter.Config{
		MinAccuracy:              cfg.Finder.MinAccuracy,
		RequirePhotoIdentifiable: cfg.Finder.RequirePhoto || opts.requirePhoto,
	}
	if opts.minAccuracy >= 0 {
		fcfg.MinAccuracy = opts.minAccuracy
	}
	if v := pick(opts.minSpread, cfg.Finder.MinSpread); v > 0 {
		fcfg.MinSpreadScore = &v
	}
	if v := pick(opts.minConfidence, cfg.Finder.MinConfidence); v > 0 {
		fcfg.MinConfidenceScore = &v
	}

	threshold := cfg.Finder.Threshold
	if opts.threshold > 0 {
		threshold = opts.threshold
	}
	maxResults := cfg.Finder.MaxResults
	if opts.maxResults > 0 {
		maxResults = opts.maxResults
	}

	return finder.New(primary, secondary, finder.Config{
		Threshold:   threshold,
		MaxResults:  maxResults,
		UseGridRefs: cfg.Finder.UseGridRefs && !opts.noGridRefs,
		Filter:      fcfg,
	})
}

func pick(flag, config float64) float64 {
	if flag >= 0 {
		return flag
	}
	return config
}

// resolveRequest builds a search request from the --bbox / --cells /
// --manifest flags.
func resolveRequest(bboxFlag, cellsFlag, manifestFlag string) (finder.Request, error) {
	set := 0
	for _, f := range []string{bboxFlag, cellsFlag, manifestFlag} {
		if f != "" {
			set++
		}
	}
	if set > 1 {
		return finder.Request{}, eris.New("--bbox, --cells, and --manifest are mutually exclusive")
	}

	switch {
	case bboxFlag != "":
		bbox, err := parseBBox(bboxFlag)
		if err != nil {
			return finder.Request{}, err
		}
		return finder.Request{BBox: &bbox}, nil
	case cellsFlag != "":
		return finder.Request{Cells: splitCells(cellsFlag)}, nil
	case manifestFlag != "":
		cells, err := manifest.Cells(manifestFlag)
		if err != nil {
			return finder.Request{}, err
		}
		return finder.Request{Cells: cells}, nil
	}
	return finder.Request{}, finder.ErrNoSearchArea
}

// requestBBox resolves a request to its bounding box without searching.
func requestBBox(req finder.Request) (model.BoundingBox, error) {
	if req.BBox != nil {
		return *req.BBox, req.BBox.Validate()
	}
	if len(req.Cells) > 0 {
		return area.CellsToBoundingBox(req.Cells)
	}
	return model.BoundingBox{}, finder.ErrNoSearchArea
}

// parseBBox parses "min_lat,min_lon,max_lat,max_lon".
func parseBBox(s string) (model.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return model.BoundingBox{}, eris.Errorf("bbox %q: want min_lat,min_lon,max_lat,max_lon", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.BoundingBox{}, eris.Wrapf(err, "bbox %q: bad coordinate %q", s, p)
		}
		vals[i] = v
	}
	bbox := model.BoundingBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	return bbox, bbox.Validate()
}

func splitCells(s string) []string {
	var cells []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}
