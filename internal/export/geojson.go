package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/dumpsite-cli/internal/normalize"
)

// GeoJSONBuilder accumulates canonical records into a Point
// FeatureCollection. Features keep input order.
type GeoJSONBuilder struct {
	features []*geojson.Feature
	skipped  int
}

// NewGeoJSONBuilder returns an empty builder.
func NewGeoJSONBuilder() *GeoJSONBuilder {
	return &GeoJSONBuilder{features: []*geojson.Feature{}}
}

// Add appends a point feature for rec when it has an identifier and both
// coordinates. It reports whether a feature was emitted.
func (b *GeoJSONBuilder) Add(rec normalize.Record) bool {
	lon, lat, ok := rec.Point()
	if !ok {
		b.skipped++
		return false
	}

	b.features = append(b.features, &geojson.Feature{
		Geometry: geom.NewPointFlat(geom.XY, []float64{lon, lat}),
		Properties: map[string]interface{}{
			normalize.FieldID: rec.ID,
		},
	})
	return true
}

// Len returns the number of features collected.
func (b *GeoJSONBuilder) Len() int { return len(b.features) }

// Skipped returns the number of records left out for lack of an identifier
// or coordinates.
func (b *GeoJSONBuilder) Skipped() int { return b.skipped }

// Collection returns the accumulated FeatureCollection.
func (b *GeoJSONBuilder) Collection() *geojson.FeatureCollection {
	return &geojson.FeatureCollection{Features: b.features}
}

// WriteGeoJSON writes fc as pretty-printed UTF-8 JSON. HTML characters and
// non-ASCII text are written as-is.
func WriteGeoJSON(w io.Writer, fc *geojson.FeatureCollection) error {
	if fc.Features == nil {
		fc = &geojson.FeatureCollection{BBox: fc.BBox, Features: []*geojson.Feature{}}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(fc); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}
