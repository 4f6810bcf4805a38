package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gcp-support/internal/export"
	"github.com/sells-group/gcp-support/internal/model"
)

// findOptions collects the find command's flag values.
type findOptions struct {
	bbox     string
	cells    string
	manifest string

	format    string
	outputDir string
	baseName  string

	minAccuracy   float64
	minSpread     float64
	minConfidence float64
	requirePhoto  bool

	maxResults  int
	threshold   int
	noGridRefs  bool
	noSecondary bool
}

var findOpts findOptions

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Search for ground control points in an area",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := resolveRequest(findOpts.bbox, findOpts.cells, findOpts.manifest)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		result, err := newFinder(st, findOpts).Find(ctx, req)
		if err != nil {
			return err
		}
		if len(result.Points) == 0 {
			return eris.New("no ground control points found for the search area")
		}

		if findOpts.format != "" {
			if err := writeExports(findOpts, result.Points); err != nil {
				return err
			}
		}

		zap.L().Info("find complete",
			zap.String("run_id", result.RunID),
			zap.Int("points", len(result.Points)),
			zap.Float64("confidence_score", result.Metrics.ConfidenceScore),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func writeExports(opts findOptions, points []model.GroundControlPoint) error {
	dir, base := opts.outputDir, opts.baseName
	switch opts.format {
	case "all":
		return export.WriteAll(dir, base, points)
	case "metashape":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create output dir %s", dir)
		}
		if err := export.WriteMetaShapeCSV(filepath.Join(dir, base+"_metashape.txt"), points); err != nil {
			return err
		}
		return export.WriteMetaShapeXML(filepath.Join(dir, base+"_metashape.xml"), points)
	case "arcgis":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create output dir %s", dir)
		}
		return export.WriteArcGISCSV(filepath.Join(dir, base+"_arcgis.csv"), points)
	case "geojson":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create output dir %s", dir)
		}
		return export.WriteGeoJSON(filepath.Join(dir, base+".geojson"), points)
	case "shapefile":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create output dir %s", dir)
		}
		return export.WriteShapefile(filepath.Join(dir, base+".shp"), points)
	case "xlsx":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create output dir %s", dir)
		}
		return export.WriteXLSX(filepath.Join(dir, base+".xlsx"), points)
	default:
		return eris.Errorf("unknown export format: %s", opts.format)
	}
}

func init() {
	f := findCmd.Flags()
	f.StringVar(&findOpts.bbox, "bbox", "", "search area as min_lat,min_lon,max_lat,max_lon")
	f.StringVar(&findOpts.cells, "cells", "", "comma-separated H3 cell indexes")
	f.StringVar(&findOpts.manifest, "manifest", "", "drone imagery manifest file")
	f.StringVar(&findOpts.format, "format", "all", "export format: all|metashape|arcgis|geojson|shapefile|xlsx (empty to skip export)")
	f.StringVar(&findOpts.outputDir, "output-dir", "gcp_output", "directory for exported files")
	f.StringVar(&findOpts.baseName, "base-name", "gcps", "base name for exported files")
	f.Float64Var(&findOpts.minAccuracy, "min-accuracy", -1, "maximum tolerated RMSE in meters (default from config)")
	f.Float64Var(&findOpts.minSpread, "min-spread", -1, "reject result sets below this spread score")
	f.Float64Var(&findOpts.minConfidence, "min-confidence", -1, "reject result sets below this confidence score")
	f.BoolVar(&findOpts.requirePhoto, "require-photo-identifiable", false, "keep only photo-identifiable points")
	f.IntVar(&findOpts.maxResults, "max-results", 0, "cap per-source results (default from config)")
	f.IntVar(&findOpts.threshold, "threshold", 0, "secondary-source fallback threshold (default from config)")
	f.BoolVar(&findOpts.noGridRefs, "no-grid-refs", false, "skip the WRS-2 path/row queries against the primary source")
	f.BoolVar(&findOpts.noSecondary, "no-secondary", false, "never query the secondary source")
	rootCmd.AddCommand(findCmd)
}
