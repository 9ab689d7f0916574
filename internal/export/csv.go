// Package export builds the GeoJSON and CSV outputs from canonical records
// and writes them to disk.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// HeaderPolicy decides which columns the CSV table carries.
type HeaderPolicy string

const (
	// HeaderFirst freezes the header on the first record with attributes.
	// Keys introduced later are dropped.
	HeaderFirst HeaderPolicy = "first"
	// HeaderUnion extends the header with every new key, in first-seen order.
	HeaderUnion HeaderPolicy = "union"
)

// ParseHeaderPolicy validates a policy name. An empty name selects HeaderFirst.
func ParseHeaderPolicy(s string) (HeaderPolicy, error) {
	switch HeaderPolicy(s) {
	case "", HeaderFirst:
		return HeaderFirst, nil
	case HeaderUnion:
		return HeaderUnion, nil
	default:
		return "", eris.Errorf("export: unknown header policy %q", s)
	}
}

// Attributes is an ordered attribute set as produced by the field mapper.
type Attributes = orderedmap.OrderedMap[string, any]

// CSVTable accumulates attribute rows under a header inferred from the data.
// The header is captured from the first non-empty record; after that rows
// are projected onto it.
type CSVTable struct {
	policy   HeaderPolicy
	captured bool
	header   []string
	columns  map[string]struct{}
	rows     []*Attributes
}

// NewCSVTable returns an empty table using policy.
func NewCSVTable(policy HeaderPolicy) *CSVTable {
	if policy == "" {
		policy = HeaderFirst
	}
	return &CSVTable{policy: policy, columns: make(map[string]struct{})}
}

// Add appends a row. Records without attributes are ignored and reported as
// not added.
func (t *CSVTable) Add(attrs *Attributes) bool {
	if attrs == nil || attrs.Len() == 0 {
		return false
	}

	if !t.captured || t.policy == HeaderUnion {
		for pair := attrs.Oldest(); pair != nil; pair = pair.Next() {
			if _, ok := t.columns[pair.Key]; ok {
				continue
			}
			t.columns[pair.Key] = struct{}{}
			t.header = append(t.header, pair.Key)
		}
		t.captured = true
	}

	t.rows = append(t.rows, attrs)
	return true
}

// Header returns the column names, or nil when no row has been added.
func (t *CSVTable) Header() []string {
	if !t.captured {
		return nil
	}
	out := make([]string, len(t.header))
	copy(out, t.header)
	return out
}

// Len returns the number of rows.
func (t *CSVTable) Len() int { return len(t.rows) }

// Policy returns the table's header policy.
func (t *CSVTable) Policy() HeaderPolicy { return t.policy }

// Rows returns every row projected onto the header. Missing cells are empty
// strings and keys outside the header are dropped.
func (t *CSVTable) Rows() [][]string {
	out := make([][]string, 0, len(t.rows))
	for _, attrs := range t.rows {
		out = append(out, t.project(attrs))
	}
	return out
}

func (t *CSVTable) project(attrs *Attributes) []string {
	row := make([]string, len(t.header))
	for i, col := range t.header {
		if v, ok := attrs.Get(col); ok {
			row[i] = FormatCell(v)
		}
	}
	return row
}

// FormatCell renders an attribute value as CSV text. Numbers use their
// shortest exact representation and null becomes an empty cell.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// utf8BOM lets spreadsheet tools detect UTF-8 CSV.
const utf8BOM = "\ufeff"

// WriteCSV writes the header and rows of t. An empty table writes nothing.
func WriteCSV(w io.Writer, t *CSVTable, bom bool) error {
	header := t.Header()
	if header == nil {
		return nil
	}

	if bom {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return eris.Wrap(err, "export: write bom")
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, row := range t.Rows() {
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}
