package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gcp-support/internal/fetcher"
	"github.com/sells-group/gcp-support/internal/model"
)

// NOAAOptions configures the NOAA geodetic-archive client.
type NOAAOptions struct {
	// ArchivePath points at a local KMZ or KML copy of the NGS Photo
	// Control Archive. Takes precedence over ArchiveURL.
	ArchivePath string

	// ArchiveURL is fetched when no local archive exists. http(s) and ftp
	// schemes are supported.
	ArchiveURL string

	// CacheDir receives the downloaded archive. Defaults to the OS temp dir.
	CacheDir string

	HTTP fetcher.Fetcher
	FTP  fetcher.Fetcher

	// Seed drives the synthetic fallback.
	Seed uint64
}

// NOAAClient serves control points from the NGS Photo Control Archive. The
// archive loads once per client; when neither a local copy nor a download is
// available the client degrades to synthetic points.
type NOAAClient struct {
	opts NOAAOptions
	gen  *Generator

	once    sync.Once
	archive []model.GroundControlPoint
	loadErr error
}

// NewNOAA creates a NOAA archive client.
func NewNOAA(opts NOAAOptions) *NOAAClient {
	if opts.CacheDir == "" {
		opts.CacheDir = os.TempDir()
	}
	if opts.HTTP == nil {
		opts.HTTP = fetcher.NewHTTP(fetcher.HTTPOptions{RateLimiters: fetcher.DefaultRateLimiters()})
	}
	if opts.FTP == nil {
		opts.FTP = fetcher.NewFTP(30 * time.Second)
	}
	return &NOAAClient{opts: opts, gen: NewGenerator(opts.Seed)}
}

func (c *NOAAClient) Name() string { return "NOAA" }

// FindByBBox filters the archive to the box and caps at maxResults.
func (c *NOAAClient) FindByBBox(ctx context.Context, bbox model.BoundingBox, maxResults int) ([]model.GroundControlPoint, error) {
	c.once.Do(func() { c.loadArchive(ctx) })
	if c.loadErr != nil {
		zap.L().Warn("source: noaa archive unavailable, using synthetic data", zap.Error(c.loadErr))
		count := maxResults
		if count <= 0 || count > 100 {
			count = 10
		}
		return c.gen.InBBox(bbox, count, 0.1, 2.0, "NOAA"), nil
	}

	var points []model.GroundControlPoint
	for _, p := range c.archive {
		lat, lon, ok := p.Coordinates()
		if !ok || !bbox.Contains(lat, lon) {
			continue
		}
		points = append(points, p)
		if maxResults > 0 && len(points) >= maxResults {
			break
		}
	}
	zap.L().Debug("source: noaa archive queried",
		zap.Int("archive_size", len(c.archive)),
		zap.Int("matched", len(points)),
	)
	return points, nil
}

func (c *NOAAClient) loadArchive(ctx context.Context) {
	path := c.opts.ArchivePath
	if path == "" && c.opts.ArchiveURL != "" {
		downloaded, err := c.downloadArchive(ctx)
		if err != nil {
			c.loadErr = err
			return
		}
		path = downloaded
	}
	if path == "" {
		c.loadErr = eris.New("source: no NOAA archive path or URL configured")
		return
	}

	points, err := parseArchive(path)
	if err != nil {
		c.loadErr = err
		return
	}
	c.archive = points
	zap.L().Info("source: noaa archive loaded",
		zap.String("path", path),
		zap.Int("points", len(points)),
	)
}

func (c *NOAAClient) downloadArchive(ctx context.Context) (string, error) {
	url := c.opts.ArchiveURL
	dest := filepath.Join(c.opts.CacheDir, filepath.Base(url))

	if _, err := os.Stat(dest); err == nil {
		zap.L().Debug("source: reusing downloaded noaa archive", zap.String("path", dest))
		return dest, nil
	}

	f := c.opts.HTTP
	if strings.HasPrefix(url, "ftp://") {
		f = c.opts.FTP
	}
	n, err := f.DownloadToFile(ctx, url, dest)
	if err != nil {
		return "", eris.Wrapf(err, "source: download NOAA archive %s", url)
	}
	zap.L().Info("source: downloaded noaa archive",
		zap.String("url", url),
		zap.Int64("bytes", n),
	)
	return dest, nil
}

func parseArchive(path string) ([]model.GroundControlPoint, error) {
	if strings.HasSuffix(strings.ToLower(path), ".kmz") {
		return ParseKMZ(path)
	}
	return ParseKMLFile(path)
}
