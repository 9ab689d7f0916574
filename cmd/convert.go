package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dumpsite-cli/internal/pipeline"
)

var convertCmd = &cobra.Command{
	Use:   "convert <path>",
	Short: "Normalize a local file or directory",
	Long: `Normalizes local input without any network access. The input kind follows the path:

  directory             ArcGIS REST exports (*.json)
  .geojson / .json      GeoJSON converted from the MOENV shapefile
  .shp                  shapefile, converted with the configured tool
  .zip                  zipped shapefile`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(cmd)
		if err != nil {
			return err
		}

		res, err := convertPath(ctx, p, args[0])
		if err != nil {
			return eris.Wrap(err, "convert")
		}
		return printResult(cmd, res)
	},
}

func convertPath(ctx context.Context, p *pipeline.Pipeline, path string) (*pipeline.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stat %s", path)
	}
	if info.IsDir() {
		return runArcGISDir(ctx, p, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return runGeoJSON(ctx, p, path)
	case ".shp", ".zip":
	default:
		return nil, eris.Errorf("unsupported input %s", path)
	}

	conv, err := newConverter()
	if err != nil {
		return nil, err
	}
	workDir, err := makeWorkDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir) //nolint:errcheck

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return runArchive(ctx, p, conv, path, workDir)
	}
	return runShapefile(ctx, p, conv, path, workDir)
}

func init() {
	addOutputFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}
