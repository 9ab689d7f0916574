// Package source reads raw dumping-site records from ArcGIS REST exports and
// shapefile-derived GeoJSON documents.
package source

import (
	"encoding/json"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

// Shape identifies which source layout a record came from. The field mapper
// uses it to resolve the identifier field.
type Shape int

const (
	// ShapeArcGIS marks records read from `features[].attributes`.
	ShapeArcGIS Shape = iota + 1
	// ShapeShapefile marks records read from `features[].properties` of a
	// GeoJSON document converted from the MOENV shapefile.
	ShapeShapefile
)

func (s Shape) String() string {
	switch s {
	case ShapeArcGIS:
		return "arcgis"
	case ShapeShapefile:
		return "shapefile"
	default:
		return "unknown"
	}
}

// Fields is a raw record: field name to scalar value, in document order.
type Fields = orderedmap.OrderedMap[string, any]

// Item is one raw record tagged with its shape and originating document.
type Item struct {
	Shape    Shape
	Document string
	Fields   *Fields
}

// Document is one named source document.
type Document struct {
	Name string
	Data []byte
}

// Stats counts what a Source has read so far.
type Stats struct {
	Documents        int `json:"documents"`
	SkippedDocuments int `json:"skipped_documents"`
	Records          int `json:"records"`
}

// ErrNoFeatures is returned when a document has no top-level features array.
var ErrNoFeatures = eris.New("source: document has no features array")

// Source yields the records of a set of documents exactly once.
type Source struct {
	shape    Shape
	docs     []Document
	strict   bool
	consumed bool
	stats    Stats
	err      error
}

// NewArcGIS returns a Source over per-region ArcGIS exports. Documents
// without a features array are skipped with a warning.
func NewArcGIS(docs []Document) *Source {
	return &Source{shape: ShapeArcGIS, docs: docs}
}

// NewGeoJSON returns a Source over a single shapefile-derived GeoJSON
// document. A missing features array is fatal and reported by Err.
func NewGeoJSON(doc Document) *Source {
	return &Source{shape: ShapeShapefile, docs: []Document{doc}, strict: true}
}

// Shape returns the shape tag attached to every record.
func (s *Source) Shape() Shape { return s.shape }

// Stats returns the counters accumulated while iterating.
func (s *Source) Stats() Stats { return s.stats }

// Err returns the fatal error that stopped iteration, if any.
func (s *Source) Err() error { return s.err }

// Records returns the record sequence. The sequence can be ranged over only
// once; later calls yield nothing.
func (s *Source) Records() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		if s.consumed {
			return
		}
		s.consumed = true

		log := zap.L().With(
			zap.String("component", "source"),
			zap.Stringer("shape", s.shape),
		)

		for _, doc := range s.docs {
			features, err := decodeFeatures(doc.Data)
			if err != nil {
				if s.strict {
					s.err = eris.Wrapf(err, "source: read %s", doc.Name)
					return
				}
				s.stats.SkippedDocuments++
				log.Warn("skipping source document",
					zap.String("document", doc.Name),
					zap.Error(err),
				)
				continue
			}
			s.stats.Documents++

			for _, f := range features {
				fields := f.fields(s.shape)
				if fields == nil {
					fields = orderedmap.New[string, any]()
				}
				s.stats.Records++
				if !yield(Item{Shape: s.shape, Document: doc.Name, Fields: fields}) {
					return
				}
			}
		}
	}
}

type document struct {
	Features *[]feature `json:"features"`
}

type feature struct {
	Attributes *Fields `json:"attributes"`
	Properties *Fields `json:"properties"`
}

func (f feature) fields(shape Shape) *Fields {
	if shape == ShapeArcGIS {
		return f.Attributes
	}
	return f.Properties
}

func decodeFeatures(data []byte) ([]feature, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "source: decode document")
	}
	if doc.Features == nil {
		return nil, ErrNoFeatures
	}
	return *doc.Features, nil
}

// ReadDir loads every *.json file in dir, sorted by file name.
func ReadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read directory %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, eris.Wrapf(err, "source: read %s", name)
		}
		docs = append(docs, Document{Name: name, Data: data})
	}
	return docs, nil
}

// ReadFile loads a single document from disk.
func ReadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, eris.Wrapf(err, "source: read %s", path)
	}
	return Document{Name: filepath.Base(path), Data: data}, nil
}
