package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gcp-support/internal/basemap"
	"github.com/sells-group/gcp-support/internal/model"
)

var basemapOpts struct {
	bbox             string
	cells            string
	manifest         string
	source           string
	zoom             int
	targetResolution float64
	output           string
	withGCPs         bool
}

var basemapCmd = &cobra.Command{
	Use:   "basemap",
	Short: "Download a georeferenced basemap image of the search area",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := resolveRequest(basemapOpts.bbox, basemapOpts.cells, basemapOpts.manifest)
		if err != nil {
			return err
		}

		var points []model.GroundControlPoint
		if basemapOpts.withGCPs {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
				if err := st.Migrate(ctx); err != nil {
					zap.L().Warn("store migration failed, caching disabled", zap.Error(err))
					st = nil
				}
			}
			result, err := newFinder(st, findOptions{
				minAccuracy:   -1,
				minSpread:     -1,
				minConfidence: -1,
			}).Find(ctx, req)
			if err != nil {
				return err
			}
			points = result.Points
		}

		// Reuse the finder's area resolution for the image extent.
		bbox, err := requestBBox(req)
		if err != nil {
			return err
		}

		src := basemapOpts.source
		if src == "" {
			src = cfg.Basemap.Source
		}
		res := basemapOpts.targetResolution
		if res == 0 {
			res = cfg.Basemap.TargetResolution
		}
		d := basemap.NewDownloader(basemap.Options{
			Source:           src,
			Zoom:             basemapOpts.zoom,
			TargetResolution: res,
			MaxTiles:         cfg.Basemap.MaxTiles,
		})
		return d.Download(ctx, bbox, points, basemapOpts.output)
	},
}

func init() {
	f := basemapCmd.Flags()
	f.StringVar(&basemapOpts.bbox, "bbox", "", "area as min_lat,min_lon,max_lat,max_lon")
	f.StringVar(&basemapOpts.cells, "cells", "", "comma-separated H3 cell indexes")
	f.StringVar(&basemapOpts.manifest, "manifest", "", "drone imagery manifest file")
	f.StringVar(&basemapOpts.source, "source", "", "tile source: openstreetmap|esri (default from config)")
	f.IntVar(&basemapOpts.zoom, "zoom", 0, "tile zoom level (0 auto-selects)")
	f.Float64Var(&basemapOpts.targetResolution, "target-resolution", 0, "target meters per pixel for auto zoom")
	f.StringVar(&basemapOpts.output, "output", "basemap.png", "output PNG path")
	f.BoolVar(&basemapOpts.withGCPs, "with-gcps", false, "search for GCPs and draw them as markers")
	rootCmd.AddCommand(basemapCmd)
}
