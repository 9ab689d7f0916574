package arcgis

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dumpsite-cli/internal/fetcher"
)

// ErrNothingFetched is returned when every region in a non-empty manifest failed.
var ErrNothingFetched = eris.New("arcgis: no region could be fetched")

// FetchResult reports which regions were written to the raw directory.
type FetchResult struct {
	Fetched []string `json:"fetched"`
	Failed  []string `json:"failed"`
}

// serviceError is the body ArcGIS Server returns, with HTTP 200, when a
// query fails.
type serviceError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch downloads every region in order and writes each export to
// <rawDir>/<FileName(name)>. A region that fails is logged and skipped; an
// earlier copy of its file is left in place. Request spacing is the fetcher's
// concern.
func Fetch(ctx context.Context, f fetcher.Fetcher, m *Manifest, rawDir string) (*FetchResult, error) {
	log := zap.L().With(zap.String("component", "arcgis"))

	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "arcgis: create raw directory %s", rawDir)
	}

	res := &FetchResult{}
	for _, r := range m.Regions {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "arcgis: fetch cancelled")
		}

		path := filepath.Join(rawDir, FileName(r.Name))
		n, err := fetchRegion(ctx, f, r, path)
		if err != nil {
			log.Warn("arcgis: region fetch failed, skipping",
				zap.String("region", r.Name),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, r.Name)
			continue
		}

		log.Info("arcgis: region fetched",
			zap.String("region", r.Name),
			zap.String("path", path),
			zap.Int64("bytes", n),
		)
		res.Fetched = append(res.Fetched, r.Name)
	}

	if len(m.Regions) > 0 && len(res.Fetched) == 0 {
		return res, ErrNothingFetched
	}
	return res, nil
}

// fetchRegion downloads to a .part file and renames it once the body is
// known to be a JSON document without an ArcGIS error.
func fetchRegion(ctx context.Context, f fetcher.Fetcher, r Region, path string) (int64, error) {
	tmp := path + ".part"
	defer os.Remove(tmp) //nolint:errcheck

	n, err := f.DownloadToFile(ctx, r.URL, tmp)
	if err != nil {
		return 0, eris.Wrap(err, "arcgis: download")
	}

	file, err := os.Open(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "arcgis: open download")
	}
	se, err := fetcher.DecodeJSONObject[serviceError](file)
	_ = file.Close()
	if err != nil {
		return 0, eris.Wrap(err, "arcgis: response is not a JSON object")
	}
	if se.Error != nil {
		return 0, eris.Errorf("arcgis: service error %d: %s", se.Error.Code, se.Error.Message)
	}

	if err := os.Rename(tmp, path); err != nil {
		return 0, eris.Wrap(err, "arcgis: move download into place")
	}
	return n, nil
}
