// Package export writes ground control points in the formats downstream
// photogrammetry and GIS tools ingest: Agisoft MetaShape (tab-separated and
// marker XML), ArcGIS (CSV, GeoJSON, shapefile), and an XLSX review workbook.
//
// Points without coordinates are skipped by every writer. Writing them as
// (0, 0) would place markers in the Gulf of Guinea.
package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gcp-support/internal/model"
)

// defaultAccuracy is written when a point reports none. One meter is the
// conventional assumption for unverified control.
const defaultAccuracy = 1.0

// WriteAll exports points in every supported format under dir, named
// <base>_<tool>.<ext>. A shapefile failure is logged but not fatal; the
// other writers abort on error.
func WriteAll(dir, base string, points []model.GroundControlPoint) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create output dir %s", dir)
	}

	if err := WriteMetaShapeCSV(filepath.Join(dir, base+"_metashape.txt"), points); err != nil {
		return err
	}
	if err := WriteMetaShapeXML(filepath.Join(dir, base+"_metashape.xml"), points); err != nil {
		return err
	}
	if err := WriteArcGISCSV(filepath.Join(dir, base+"_arcgis.csv"), points); err != nil {
		return err
	}
	if err := WriteGeoJSON(filepath.Join(dir, base+"_arcgis.geojson"), points); err != nil {
		return err
	}
	if err := WriteXLSX(filepath.Join(dir, base+"_review.xlsx"), points); err != nil {
		return err
	}

	if err := WriteShapefile(filepath.Join(dir, base+"_arcgis.shp"), points); err != nil {
		zap.L().Warn("export: shapefile export failed", zap.Error(err))
	}

	zap.L().Info("export: wrote all formats",
		zap.String("dir", dir),
		zap.String("base", base),
		zap.Int("points", len(points)),
	)
	return nil
}

func accuracyOf(p *model.GroundControlPoint) float64 {
	if p.Accuracy != nil {
		return *p.Accuracy
	}
	return defaultAccuracy
}

func descriptionOf(p *model.GroundControlPoint) string {
	if p.Description != "" {
		return p.Description
	}
	return p.Type
}
