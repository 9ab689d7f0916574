package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dumpsite-cli/internal/moenv"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Fetch the latest MOENV release and normalize it",
	Long: `Looks up the newest illegal dumping site release on the MOENV open-data platform,
downloads the zipped shapefile, converts it to GeoJSON and writes the point collection
and CSV table.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "crawl"))
		keepTemp, _ := cmd.Flags().GetBool("keep-temp")

		p, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		conv, err := newConverter()
		if err != nil {
			return err
		}

		f := newFetcher(0)
		client := moenv.NewClient(f, cfg.MOENV.SearchURL, cfg.MOENV.ResourceID, cfg.MOENV.Limit)
		ds, err := client.Latest(ctx)
		if err != nil {
			return eris.Wrap(err, "crawl")
		}

		workDir, err := makeWorkDir()
		if err != nil {
			return err
		}
		if keepTemp {
			log.Info("keeping work directory", zap.String("path", workDir))
		} else {
			defer os.RemoveAll(workDir) //nolint:errcheck
		}

		zipPath := filepath.Join(workDir, "data.zip")
		n, err := f.DownloadToFile(ctx, ds.URL, zipPath)
		if err != nil {
			return eris.Wrap(err, "crawl: download archive")
		}
		log.Info("archive downloaded",
			zap.String("filename", ds.Filename),
			zap.Int64("bytes", n),
		)

		res, err := runArchive(ctx, p, conv, zipPath, workDir)
		if err != nil {
			return eris.Wrap(err, "crawl")
		}
		return printResult(cmd, res)
	},
}

func init() {
	addOutputFlags(crawlCmd)
	crawlCmd.Flags().Bool("keep-temp", false, "keep the downloaded archive and converted GeoJSON")
	rootCmd.AddCommand(crawlCmd)
}
