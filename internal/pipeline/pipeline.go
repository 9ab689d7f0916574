// Package pipeline runs the single-pass normalization: source records are
// mapped once and fed to the GeoJSON and CSV accumulators before both
// outputs are written.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dumpsite-cli/internal/export"
	"github.com/sells-group/dumpsite-cli/internal/normalize"
	"github.com/sells-group/dumpsite-cli/internal/source"
)

// Options configures a Pipeline.
type Options struct {
	HeaderPolicy export.HeaderPolicy
	Sink         export.Sink
}

// Result summarizes one run.
type Result struct {
	RunID            string        `json:"run_id"`
	Shape            string        `json:"shape"`
	Documents        int           `json:"documents"`
	SkippedDocuments int           `json:"skipped_documents"`
	Records          int           `json:"records"`
	EmptyRecords     int           `json:"empty_records"`
	Features         int           `json:"features"`
	MissingGeometry  int           `json:"missing_geometry"`
	Rows             int           `json:"rows"`
	Columns          []string      `json:"columns"`
	Duration         time.Duration `json:"duration"`
}

// Output holds the accumulators after a run, before they are written.
type Output struct {
	GeoJSON *export.GeoJSONBuilder
	Table   *export.CSVTable
}

// Pipeline maps source records and writes the two outputs.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.HeaderPolicy == "" {
		opts.HeaderPolicy = export.HeaderFirst
	}
	return &Pipeline{opts: opts}
}

// Run normalizes every record of src and writes both outputs through the
// configured sink. An empty source still produces well-formed outputs.
func (p *Pipeline) Run(ctx context.Context, src *source.Source) (*Result, error) {
	out, result, err := p.Normalize(ctx, src)
	if err != nil {
		return result, err
	}

	if err := p.opts.Sink.Write(out.GeoJSON, out.Table); err != nil {
		return result, eris.Wrap(err, "pipeline: write outputs")
	}
	return result, nil
}

// Normalize consumes src and returns the filled accumulators without
// writing anything.
func (p *Pipeline) Normalize(ctx context.Context, src *source.Source) (*Output, *Result, error) {
	start := time.Now()
	result := &Result{
		RunID: uuid.NewString(),
		Shape: src.Shape().String(),
	}
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("run_id", result.RunID),
		zap.Stringer("shape", src.Shape()),
	)

	mapper, err := normalize.NewMapper(src.Shape())
	if err != nil {
		return nil, result, eris.Wrap(err, "pipeline: select mapper")
	}

	out := &Output{
		GeoJSON: export.NewGeoJSONBuilder(),
		Table:   export.NewCSVTable(p.opts.HeaderPolicy),
	}

	for item := range src.Records() {
		if err := ctx.Err(); err != nil {
			return nil, result, eris.Wrap(err, "pipeline: cancelled")
		}

		rec, err := mapper.Map(item.Fields)
		if errors.Is(err, normalize.ErrEmptyRecord) {
			result.EmptyRecords++
			log.Debug("skipping empty record", zap.String("document", item.Document))
			continue
		}
		if err != nil {
			return nil, result, eris.Wrap(err, "pipeline: map record")
		}

		if !out.GeoJSON.Add(rec) {
			log.Debug("record has no point geometry",
				zap.String("document", item.Document),
				zap.Any("id", rec.ID),
			)
		}
		out.Table.Add(rec.Attributes)
	}

	stats := src.Stats()
	result.Documents = stats.Documents
	result.SkippedDocuments = stats.SkippedDocuments
	result.Records = stats.Records

	if err := src.Err(); err != nil {
		return nil, result, eris.Wrap(err, "pipeline: read source")
	}

	result.Features = out.GeoJSON.Len()
	result.MissingGeometry = out.GeoJSON.Skipped()
	result.Rows = out.Table.Len()
	result.Columns = out.Table.Header()
	result.Duration = time.Since(start)

	if result.Rows == 0 {
		log.Warn("no records produced, writing empty outputs",
			zap.Int("documents", result.Documents),
			zap.Int("skipped_documents", result.SkippedDocuments),
		)
	}

	log.Info("normalization complete",
		zap.Int("records", result.Records),
		zap.Int("features", result.Features),
		zap.Int("rows", result.Rows),
		zap.Int("missing_geometry", result.MissingGeometry),
		zap.Int("empty_records", result.EmptyRecords),
		zap.Duration("duration", result.Duration),
	)

	return out, result, nil
}
