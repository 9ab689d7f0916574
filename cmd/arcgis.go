package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dumpsite-cli/internal/arcgis"
)

var arcgisCmd = &cobra.Command{
	Use:   "arcgis",
	Short: "Normalize regional ArcGIS exports",
	Long: `Reads every *.json ArcGIS REST export in the raw directory, in file name order,
and writes the point collection and CSV table. With --fetch the exports listed in the
region manifest are downloaded first, one region at a time.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "arcgis"))

		doFetch, _ := cmd.Flags().GetBool("fetch")
		manifestPath, _ := cmd.Flags().GetString("manifest")
		rawDir, _ := cmd.Flags().GetString("raw-dir")
		if manifestPath == "" {
			manifestPath = cfg.ArcGIS.Manifest
		}
		if rawDir == "" {
			rawDir = cfg.Paths.RawDir
		}

		p, err := newPipeline(cmd)
		if err != nil {
			return err
		}

		if doFetch {
			m, err := arcgis.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			fr, err := arcgis.Fetch(ctx, newFetcher(cfg.ArcGIS.RequestsPerSecond), m, rawDir)
			if err != nil {
				return eris.Wrap(err, "arcgis: fetch regions")
			}
			if len(fr.Failed) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d of %d regions failed: %v\n",
					len(fr.Failed), len(m.Regions), fr.Failed)
			}
		}

		log.Info("normalizing arcgis exports", zap.String("raw_dir", rawDir))
		res, err := runArcGISDir(ctx, p, rawDir)
		if err != nil {
			return eris.Wrap(err, "arcgis")
		}
		return printResult(cmd, res)
	},
}

func init() {
	addOutputFlags(arcgisCmd)
	arcgisCmd.Flags().Bool("fetch", false, "download the manifest's regions before normalizing")
	arcgisCmd.Flags().String("manifest", "", "region manifest path (default: from config)")
	arcgisCmd.Flags().String("raw-dir", "", "directory of ArcGIS JSON exports (default: from config)")
	rootCmd.AddCommand(arcgisCmd)
}
