package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/gcp-support/internal/area"
	"github.com/sells-group/gcp-support/internal/manifest"
	"github.com/sells-group/gcp-support/internal/model"
)

var cellsManifest string

var cellsCmd = &cobra.Command{
	Use:   "cells [h3-cell ...]",
	Short: "Resolve H3 cells to a bounding box and WRS-2 grid references",
	RunE: func(cmd *cobra.Command, args []string) error {
		cells := args
		if cellsManifest != "" {
			parsed, err := manifest.Cells(cellsManifest)
			if err != nil {
				return err
			}
			cells = append(parsed, cells...)
		}

		bbox, err := area.CellsToBoundingBox(cells)
		if err != nil {
			return err
		}

		poly, err := area.CellsToPolygon(cells)
		if err != nil {
			return err
		}
		geo, err := geojson.Marshal(poly)
		if err != nil {
			return err
		}

		out := struct {
			Cells    []string          `json:"cells"`
			BBox     model.BoundingBox `json:"bbox"`
			Polygon  json.RawMessage   `json:"polygon"`
			GridRefs []area.GridRef    `json:"grid_refs"`
		}{
			Cells:    cells,
			BBox:     bbox,
			Polygon:  geo,
			GridRefs: area.BoundingBoxToGridRefs(bbox),
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	cellsCmd.Flags().StringVar(&cellsManifest, "manifest", "", "drone imagery manifest file")
	rootCmd.AddCommand(cellsCmd)
}
