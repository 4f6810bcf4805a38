package basemap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"strings"

	_ "image/jpeg" // ESRI World Imagery tiles are JPEG

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gcp-support/internal/fetcher"
	"github.com/sells-group/gcp-support/internal/model"
)

const downloadWorkers = 4

// missingTileGray fills tiles that failed to download.
var missingTileGray = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// markerRed draws GCP crosses.
var markerRed = color.RGBA{R: 220, G: 20, B: 60, A: 255}

// Options configures a basemap download.
type Options struct {
	// Source selects the tile provider. Defaults to "openstreetmap".
	Source string

	// Zoom forces a zoom level; 0 auto-selects.
	Zoom int

	// TargetResolution in meters per pixel drives auto zoom selection.
	TargetResolution float64

	// MaxTiles bounds the download budget for auto zoom. Defaults to 64.
	MaxTiles int

	Fetcher fetcher.Fetcher
}

// Downloader fetches and assembles basemaps.
type Downloader struct {
	opts Options
}

// NewDownloader creates a Downloader.
func NewDownloader(opts Options) *Downloader {
	if opts.Source == "" {
		opts.Source = "openstreetmap"
	}
	if opts.MaxTiles <= 0 {
		opts.MaxTiles = 64
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetcher.NewHTTP(fetcher.HTTPOptions{RateLimiters: fetcher.DefaultRateLimiters()})
	}
	return &Downloader{opts: opts}
}

// Download fetches the tiles covering bbox, stitches them, crops to the box,
// draws markers for the given points (may be nil), and writes a PNG plus a
// .pgw world file next to it. Failed tiles render gray rather than aborting
// the assembly.
func (d *Downloader) Download(ctx context.Context, bbox model.BoundingBox, points []model.GroundControlPoint, outputPath string) error {
	if err := bbox.Validate(); err != nil {
		return err
	}

	zoom := d.opts.Zoom
	if zoom == 0 {
		zoom = CalculateZoom(bbox, d.opts.MaxTiles, d.opts.TargetResolution)
	}
	xMin, yMin, xMax, yMax := tileRange(bbox, zoom)
	cols, rows := xMax-xMin+1, yMax-yMin+1

	zap.L().Info("basemap: downloading tiles",
		zap.String("source", d.opts.Source),
		zap.Int("zoom", zoom),
		zap.Int("tiles", cols*rows),
	)

	tiles := make([]image.Image, cols*rows)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadWorkers)
	for ty := yMin; ty <= yMax; ty++ {
		for tx := xMin; tx <= xMax; tx++ {
			idx := (ty-yMin)*cols + (tx - xMin)
			tile := Tile{X: tx, Y: ty, Zoom: zoom}
			g.Go(func() error {
				img, err := d.fetchTile(gctx, tile)
				if err != nil {
					zap.L().Warn("basemap: tile download failed",
						zap.Int("x", tile.X),
						zap.Int("y", tile.Y),
						zap.Int("zoom", tile.Zoom),
						zap.Error(err),
					)
					return nil
				}
				tiles[idx] = img
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "basemap: download tiles")
	}

	stitched := stitch(tiles, cols, rows)
	cropped, origin := crop(stitched, bbox, xMin, yMin, zoom)
	if len(points) > 0 {
		drawMarkers(cropped, origin, points, zoom)
	}

	if !strings.HasSuffix(outputPath, ".png") {
		outputPath += ".png"
	}
	if err := writePNG(outputPath, cropped); err != nil {
		return err
	}
	if err := writeWorldFile(worldFilePath(outputPath), cropped.Bounds(), origin, zoom); err != nil {
		return err
	}

	zap.L().Info("basemap: saved",
		zap.String("path", outputPath),
		zap.Int("width", cropped.Bounds().Dx()),
		zap.Int("height", cropped.Bounds().Dy()),
	)
	return nil
}

func (d *Downloader) fetchTile(ctx context.Context, t Tile) (image.Image, error) {
	url, err := TileURL(t, d.opts.Source)
	if err != nil {
		return nil, err
	}
	body, err := d.opts.Fetcher.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "basemap: read tile body")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "basemap: decode tile")
	}
	return img, nil
}

// stitch pastes tiles row-major into one RGBA canvas. Nil entries paint gray.
func stitch(tiles []image.Image, cols, rows int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, cols*tileSize, rows*tileSize))
	for i, tile := range tiles {
		x := (i % cols) * tileSize
		y := (i / cols) * tileSize
		rect := image.Rect(x, y, x+tileSize, y+tileSize)
		if tile == nil {
			draw.Draw(canvas, rect, &image.Uniform{C: missingTileGray}, image.Point{}, draw.Src)
			continue
		}
		draw.Draw(canvas, rect, tile, tile.Bounds().Min, draw.Src)
	}
	return canvas
}

// pixelOrigin is the global pixel coordinate of the cropped image's top-left
// corner, needed to place markers and write the world file.
type pixelOrigin struct {
	px, py float64
}

// crop cuts the stitched canvas down to the bounding box.
func crop(canvas *image.RGBA, bbox model.BoundingBox, xMin, yMin, zoom int) (*image.RGBA, pixelOrigin) {
	originPx := float64(xMin * tileSize)
	originPy := float64(yMin * tileSize)

	leftPx, topPy := globalPixel(bbox.MaxLat, bbox.MinLon, zoom)
	rightPx, bottomPy := globalPixel(bbox.MinLat, bbox.MaxLon, zoom)

	rect := image.Rect(
		int(leftPx-originPx), int(topPy-originPy),
		int(rightPx-originPx), int(bottomPy-originPy),
	).Intersect(canvas.Bounds())
	if rect.Empty() {
		return canvas, pixelOrigin{px: originPx, py: originPy}
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), canvas, rect.Min, draw.Src)
	return out, pixelOrigin{px: originPx + float64(rect.Min.X), py: originPy + float64(rect.Min.Y)}
}

// drawMarkers paints a cross at each point location.
func drawMarkers(img *image.RGBA, origin pixelOrigin, points []model.GroundControlPoint, zoom int) {
	const arm = 5
	bounds := img.Bounds()
	for i := range points {
		lat, lon, ok := points[i].Coordinates()
		if !ok {
			continue
		}
		px, py := globalPixel(lat, lon, zoom)
		cx := int(px - origin.px)
		cy := int(py - origin.py)
		if cx < bounds.Min.X || cx >= bounds.Max.X || cy < bounds.Min.Y || cy >= bounds.Max.Y {
			continue
		}
		for o := -arm; o <= arm; o++ {
			if x := cx + o; x >= bounds.Min.X && x < bounds.Max.X {
				img.SetRGBA(x, cy, markerRed)
			}
			if y := cy + o; y >= bounds.Min.Y && y < bounds.Max.Y {
				img.SetRGBA(cx, y, markerRed)
			}
		}
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "basemap: create %s", path)
	}
	defer func() { _ = f.Close() }()
	return eris.Wrap(png.Encode(f, img), "basemap: encode png")
}

// writeWorldFile emits the six-line ESRI world file georeferencing the image
// in EPSG:4326. Pixel sizes vary with latitude in Web Mercator, so the
// north-edge values are used; consumers of small-area basemaps tolerate the
// approximation.
func writeWorldFile(path string, bounds image.Rectangle, origin pixelOrigin, zoom int) error {
	topLat, leftLon := pixelToDeg(origin.px, origin.py, zoom)
	bottomLat, rightLon := pixelToDeg(origin.px+float64(bounds.Dx()), origin.py+float64(bounds.Dy()), zoom)

	xSize := (rightLon - leftLon) / float64(bounds.Dx())
	ySize := (bottomLat - topLat) / float64(bounds.Dy()) // negative: north-up

	content := fmt.Sprintf("%.12f\n0.0\n0.0\n%.12f\n%.12f\n%.12f\n",
		xSize, ySize,
		leftLon+xSize/2,  // center of the top-left pixel
		topLat+ySize/2,
	)
	return eris.Wrapf(os.WriteFile(path, []byte(content), 0o644), "basemap: write world file %s", path)
}

// pixelToDeg inverts globalPixel.
func pixelToDeg(px, py float64, zoom int) (lat, lon float64) {
	n := math.Exp2(float64(zoom)) * tileSize
	lon = px/n*360.0 - 180.0
	lat = math.Atan(math.Sinh(math.Pi*(1-2*py/n))) * 180.0 / math.Pi
	return lat, lon
}

func worldFilePath(pngPath string) string {
	return strings.TrimSuffix(pngPath, ".png") + ".pgw"
}
