// Package geoconv converts the MOENV shapefile into a GeoJSON document whose
// feature properties carry the DBF attributes.
package geoconv

import (
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Converter turns a shapefile into a GeoJSON FeatureCollection file.
type Converter interface {
	Convert(ctx context.Context, shpPath, outPath string) error
}

// Tool names accepted by New.
const (
	ToolOGR2OGR = "ogr2ogr"
	ToolNative  = "native"
)

// New returns the converter named by tool.
func New(tool, ogr2ogrPath, charset string) (Converter, error) {
	switch tool {
	case "", ToolOGR2OGR:
		return &OGR2OGR{Path: ogr2ogrPath}, nil
	case ToolNative:
		return &Native{Charset: charset}, nil
	default:
		return nil, eris.Errorf("geoconv: unknown converter %q", tool)
	}
}

// OGR2OGR shells out to GDAL's ogr2ogr and reprojects to WGS 84.
type OGR2OGR struct {
	// Path to the ogr2ogr binary. Defaults to "ogr2ogr" on PATH.
	Path string
}

// Convert runs `ogr2ogr -f GeoJSON -t_srs EPSG:4326 out in`.
func (o *OGR2OGR) Convert(ctx context.Context, shpPath, outPath string) error {
	bin := o.Path
	if bin == "" {
		bin = ToolOGR2OGR
	}

	// ogr2ogr refuses to overwrite an existing GeoJSON file.
	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "geoconv: remove previous output")
	}

	cmd := exec.CommandContext(ctx, bin, "-f", "GeoJSON", "-t_srs", "EPSG:4326", outPath, shpPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return eris.Wrapf(err, "geoconv: ogr2ogr failed: %s", string(out))
	}

	zap.L().Info("geoconv: converted shapefile",
		zap.String("tool", ToolOGR2OGR),
		zap.String("input", shpPath),
		zap.String("output", outPath),
	)
	return nil
}
