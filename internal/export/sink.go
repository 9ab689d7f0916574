package export

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Sink writes the two outputs to files.
type Sink struct {
	GeoJSONPath string
	CSVPath     string
	CSVBOM      bool
}

// Write serializes both accumulators. Each file is replaced atomically, so
// readers never see a half-written output.
func (s Sink) Write(g *GeoJSONBuilder, t *CSVTable) error {
	log := zap.L().With(zap.String("component", "export.sink"))

	if s.GeoJSONPath != "" {
		err := writeFileAtomic(s.GeoJSONPath, func(w io.Writer) error {
			return WriteGeoJSON(w, g.Collection())
		})
		if err != nil {
			return eris.Wrap(err, "export: write geojson")
		}
		log.Info("wrote geojson",
			zap.String("path", s.GeoJSONPath),
			zap.Int("features", g.Len()),
		)
	}

	if s.CSVPath != "" {
		err := writeFileAtomic(s.CSVPath, func(w io.Writer) error {
			return WriteCSV(w, t, s.CSVBOM)
		})
		if err != nil {
			return eris.Wrap(err, "export: write csv")
		}
		log.Info("wrote csv",
			zap.String("path", s.CSVPath),
			zap.Int("rows", t.Len()),
			zap.Int("columns", len(t.Header())),
		)
	}

	return nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	bw := bufio.NewWriter(tmp)
	if err := fn(bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "flush temp file")
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return eris.Wrapf(err, "rename to %s", path)
	}
	return nil
}
