// Package normalize maps raw source records into the canonical dumping-site
// schema shared by the GeoJSON and CSV outputs.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/sells-group/dumpsite-cli/internal/source"
)

// Canonical field names.
const (
	FieldID  = "id"
	FieldLon = "Lon"
	FieldLat = "Lat"
)

// ErrEmptyRecord is returned for a record that carries no attributes once
// coordinates are removed. Such a record feeds neither output.
var ErrEmptyRecord = eris.New("normalize: record has no attributes")

// FieldSchema describes how one source shape names its identifier and
// coordinate fields.
type FieldSchema struct {
	IDField  string
	IDAlias  string // attribute key the identifier is written under; empty keeps IDField
	LonField string
	LatField string
}

// ArcGIS exports keep OBJECTID under its own name.
var ArcGISSchema = FieldSchema{
	IDField:  "OBJECTID",
	LonField: FieldLon,
	LatField: FieldLat,
}

// Shapefile-derived records rename the case number to id.
var ShapefileSchema = FieldSchema{
	IDField:  "案件編號",
	IDAlias:  FieldID,
	LonField: FieldLon,
	LatField: FieldLat,
}

// SchemaFor returns the field schema for a source shape.
func SchemaFor(shape source.Shape) (FieldSchema, error) {
	switch shape {
	case source.ShapeArcGIS:
		return ArcGISSchema, nil
	case source.ShapeShapefile:
		return ShapefileSchema, nil
	default:
		return FieldSchema{}, eris.Errorf("normalize: unsupported source shape %d", int(shape))
	}
}

func (s FieldSchema) idKey() string {
	if s.IDAlias != "" {
		return s.IDAlias
	}
	return s.IDField
}

// Record is a canonical dumping-site record. It is not modified after Map
// returns it.
type Record struct {
	// ID is the identifier value; nil when the source field is missing or null.
	ID  any
	Lon *float64
	Lat *float64
	// Attributes holds every source field except the coordinates, in source
	// order, with the identifier under its canonical key.
	Attributes *orderedmap.OrderedMap[string, any]
}

// Point returns the record's coordinates and whether the record can be
// emitted as a point feature.
func (r Record) Point() (lon, lat float64, ok bool) {
	if r.ID == nil || r.Lon == nil || r.Lat == nil {
		return 0, 0, false
	}
	return *r.Lon, *r.Lat, true
}

// Mapper converts raw records of one shape into canonical records.
type Mapper struct {
	schema FieldSchema
}

// NewMapper returns a Mapper for the given source shape.
func NewMapper(shape source.Shape) (*Mapper, error) {
	schema, err := SchemaFor(shape)
	if err != nil {
		return nil, err
	}
	return &Mapper{schema: schema}, nil
}

// NewSchemaMapper returns a Mapper for an explicit field schema.
func NewSchemaMapper(schema FieldSchema) *Mapper {
	return &Mapper{schema: schema}
}

// Schema returns the field schema the mapper applies.
func (m *Mapper) Schema() FieldSchema { return m.schema }

// Map converts one raw record. It returns ErrEmptyRecord when nothing but
// coordinates (or nothing at all) is present.
func (m *Mapper) Map(fields *source.Fields) (Record, error) {
	rec := Record{Attributes: orderedmap.New[string, any]()}
	if fields == nil {
		return rec, ErrEmptyRecord
	}

	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		switch pair.Key {
		case m.schema.LonField:
			rec.Lon = parseCoord(pair.Value)
		case m.schema.LatField:
			rec.Lat = parseCoord(pair.Value)
		case m.schema.IDField:
			// A null identifier is left out of the attributes entirely.
			if pair.Value == nil {
				continue
			}
			rec.ID = pair.Value
			rec.Attributes.Set(m.schema.idKey(), pair.Value)
		default:
			rec.Attributes.Set(pair.Key, pair.Value)
		}
	}

	if rec.Attributes.Len() == 0 {
		return rec, ErrEmptyRecord
	}
	return rec, nil
}

// parseCoord reads a coordinate from a JSON scalar. Anything that is not a
// finite number yields nil.
func parseCoord(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
