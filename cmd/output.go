package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dumpsite-cli/internal/export"
	"github.com/sells-group/dumpsite-cli/internal/fetcher"
	"github.com/sells-group/dumpsite-cli/internal/geoconv"
	"github.com/sells-group/dumpsite-cli/internal/pipeline"
	"github.com/sells-group/dumpsite-cli/internal/source"
)

// addOutputFlags registers the flags shared by every command that writes
// the GeoJSON and CSV artifacts.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("geojson", "", "GeoJSON output path (default: from config)")
	cmd.Flags().String("csv", "", "CSV output path (default: from config)")
	cmd.Flags().String("header-policy", "", "CSV header policy: first or union (default: from config)")
	cmd.Flags().Bool("bom", false, "prefix the CSV with a UTF-8 byte order mark")
	cmd.Flags().Bool("json", false, "print the run summary as JSON")
}

// newPipeline builds a pipeline from config, overridden by command flags.
func newPipeline(cmd *cobra.Command) (*pipeline.Pipeline, error) {
	geojsonPath, _ := cmd.Flags().GetString("geojson")
	csvPath, _ := cmd.Flags().GetString("csv")
	policyStr, _ := cmd.Flags().GetString("header-policy")
	bom, _ := cmd.Flags().GetBool("bom")

	if geojsonPath == "" {
		geojsonPath = cfg.Output.GeoJSON
	}
	if csvPath == "" {
		csvPath = cfg.Output.CSV
	}
	if policyStr == "" {
		policyStr = cfg.Output.HeaderPolicy
	}
	if !cmd.Flags().Changed("bom") {
		bom = cfg.Output.CSVBOM
	}

	policy, err := export.ParseHeaderPolicy(policyStr)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Options{
		HeaderPolicy: policy,
		Sink: export.Sink{
			GeoJSONPath: geojsonPath,
			CSVPath:     csvPath,
			CSVBOM:      bom,
		},
	}), nil
}

// newFetcher builds the HTTP fetcher. rps <= 0 leaves requests unthrottled.
func newFetcher(rps float64) *fetcher.HTTPFetcher {
	opts := fetcher.HTTPOptions{
		UserAgent:          cfg.Fetch.UserAgent,
		Timeout:            time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		InsecureSkipVerify: cfg.Fetch.InsecureSkipVerify,
	}
	if rps > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return fetcher.NewHTTPFetcher(opts)
}

func newConverter() (geoconv.Converter, error) {
	return geoconv.New(cfg.Convert.Tool, cfg.Convert.OGR2OGRPath, cfg.Convert.Charset)
}

// runShapefile converts shpPath to GeoJSON inside workDir and runs the
// pipeline over the converted document.
func runShapefile(ctx context.Context, p *pipeline.Pipeline, conv geoconv.Converter, shpPath, workDir string) (*pipeline.Result, error) {
	geojsonPath := filepath.Join(workDir, "output.geojson")
	if err := conv.Convert(ctx, shpPath, geojsonPath); err != nil {
		return nil, err
	}
	return runGeoJSON(ctx, p, geojsonPath)
}

// runArchive extracts a zipped shapefile into workDir and runs it.
func runArchive(ctx context.Context, p *pipeline.Pipeline, conv geoconv.Converter, zipPath, workDir string) (*pipeline.Result, error) {
	extractDir := filepath.Join(workDir, "extract")
	files, err := fetcher.ExtractZIP(zipPath, extractDir)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("archive extracted", zap.String("archive", zipPath), zap.Int("files", len(files)))

	shpPath, err := fetcher.FindFile(extractDir, ".shp")
	if err != nil {
		return nil, eris.Wrap(err, "locate shapefile")
	}
	return runShapefile(ctx, p, conv, shpPath, workDir)
}

func runGeoJSON(ctx context.Context, p *pipeline.Pipeline, path string) (*pipeline.Result, error) {
	doc, err := source.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, source.NewGeoJSON(doc))
}

func runArcGISDir(ctx context.Context, p *pipeline.Pipeline, dir string) (*pipeline.Result, error) {
	docs, err := source.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, source.NewArcGIS(docs))
}

// printResult writes the run summary to the command's output.
func printResult(cmd *cobra.Command, res *pipeline.Result) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return writeResult(cmd.OutOrStdout(), res, asJSON)
}

func writeResult(w io.Writer, res *pipeline.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := fmt.Fprintf(w, "%s: %d records, %d features, %d rows x %d columns (%d documents, %d skipped)\n",
		res.Shape, res.Records, res.Features, res.Rows, len(res.Columns), res.Documents, res.SkippedDocuments)
	return err
}

// makeWorkDir creates a fresh per-run directory under the configured temp dir.
func makeWorkDir() (string, error) {
	if err := os.MkdirAll(cfg.Paths.TempDir, 0o755); err != nil {
		return "", eris.Wrap(err, "create temp dir")
	}
	dir, err := os.MkdirTemp(cfg.Paths.TempDir, "run-")
	if err != nil {
		return "", eris.Wrap(err, "create work dir")
	}
	return dir, nil
}
