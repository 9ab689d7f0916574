package geoconv

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset is the DBF encoding used by MOENV releases.
const DefaultCharset = "big5"

// Native converts with go-shp, without GDAL. Geometry is copied in the
// shapefile's own CRS; only point shapes are kept.
type Native struct {
	// Charset of the DBF text. A sibling .cpg file takes precedence.
	Charset string
}

type nativeFeature struct {
	Type       string                              `json:"type"`
	Properties *orderedmap.OrderedMap[string, any] `json:"properties"`
	Geometry   *geojson.Geometry                   `json:"geometry"`
}

type nativeCollection struct {
	Type     string          `json:"type"`
	Features []nativeFeature `json:"features"`
}

// Convert reads shpPath and its .dbf and writes a GeoJSON document to outPath.
func (n *Native) Convert(ctx context.Context, shpPath, outPath string) error {
	log := zap.L().With(
		zap.String("component", "geoconv.native"),
		zap.String("input", shpPath),
	)

	charset := n.Charset
	if cpg, ok := readCPG(shpPath); ok {
		charset = cpg
	}
	if charset == "" {
		charset = DefaultCharset
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return eris.Wrapf(err, "geoconv: unsupported charset %q", charset)
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return eris.Wrapf(err, "geoconv: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = decodeText(enc, f.String())
	}

	fc := nativeCollection{Type: "FeatureCollection", Features: []nativeFeature{}}
	var unsupported int

	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "geoconv: cancelled")
		}

		_, shape := reader.Shape()
		props := orderedmap.New[string, any]()
		for i, f := range fields {
			props.Set(names[i], attributeValue(enc, f, reader.Attribute(i)))
		}

		g, err := encodeShape(shape)
		if err != nil {
			return err
		}
		if g == nil {
			unsupported++
		}

		fc.Features = append(fc.Features, nativeFeature{Type: "Feature", Properties: props, Geometry: g})
	}
	if err := reader.Err(); err != nil {
		return eris.Wrap(err, "geoconv: read shapefile")
	}

	if unsupported > 0 {
		log.Debug("geoconv: features without point geometry", zap.Int("count", unsupported))
	}

	if err := writeJSON(outPath, fc); err != nil {
		return err
	}

	log.Info("geoconv: converted shapefile",
		zap.String("tool", ToolNative),
		zap.String("charset", charset),
		zap.String("output", outPath),
		zap.Int("features", len(fc.Features)),
	)
	return nil
}

// encodeShape returns the GeoJSON geometry for point shapes and nil for
// anything else.
func encodeShape(shape shp.Shape) (*geojson.Geometry, error) {
	var g geom.T
	switch s := shape.(type) {
	case *shp.Point:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointZ:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointM:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	default:
		return nil, nil
	}

	out, err := geojson.Encode(g)
	if err != nil {
		return nil, eris.Wrap(err, "geoconv: encode geometry")
	}
	return out, nil
}

// attributeValue converts a raw DBF cell the way GDAL exposes it: blanks are
// null, numeric columns become numbers, dates become ISO 8601.
func attributeValue(enc encoding.Encoding, f shp.Field, raw string) any {
	val := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if val == "" {
		return nil
	}

	switch f.Fieldtype {
	case 'N', 'F':
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil
		}
		return n
	case 'L':
		switch strings.ToUpper(val) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		default:
			return nil
		}
	case 'D':
		if len(val) == 8 {
			return val[0:4] + "-" + val[4:6] + "-" + val[6:8]
		}
		return val
	default:
		return decodeText(enc, val)
	}
}

func decodeText(enc encoding.Encoding, s string) string {
	out, err := enc.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

// readCPG reads the code page declared next to the shapefile, if any.
func readCPG(shpPath string) (string, bool) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".cpg", ".CPG"} {
		data, err := os.ReadFile(base + ext)
		if err != nil {
			continue
		}
		if cs := normalizeCodePage(string(data)); cs != "" {
			return cs, true
		}
	}
	return "", false
}

// normalizeCodePage maps ESRI code page names onto WHATWG encoding labels.
func normalizeCodePage(cp string) string {
	cp = strings.ToLower(strings.TrimSpace(cp))
	switch cp {
	case "":
		return ""
	case "950", "cp950", "ms950", "big5":
		return "big5"
	case "65001", "utf8", "utf-8":
		return "utf-8"
	}
	if _, err := strconv.Atoi(cp); err == nil {
		return "windows-" + cp
	}
	return cp
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "geoconv: create output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "geoconv: create output")
	}
	defer f.Close() //nolint:errcheck

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "geoconv: encode geojson")
	}
	if err := bw.Flush(); err != nil {
		return eris.Wrap(err, "geoconv: flush output")
	}
	return nil
}
