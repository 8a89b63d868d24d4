/*
pipeline.go - One sync run, end to end

PURPOSE:
  Wires the ingestion path together for one worksheet: registry lookup
  (fatal on miss - that is a configuration error, not bad data), batch
  transform/validate/key, then upsert of the keyed records through the
  external store collaborator.

CONCURRENCY MODEL:
  One sync run is a single-writer synchronous batch. Rows are independent,
  so row order never affects correctness; serialization across runs against
  the same target table is the store's job (it upserts on the unique key).
  The pipeline itself performs no network I/O beyond the final Sink call.
*/
package ingest

import (
	"context"
	"fmt"

	"github.com/classly/reconcile-engine/mapping"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Sink is the external store's upsert surface. Implementations decide
// insert-vs-update on each record's Key and must be safe to retry: the
// records of a rerun carry identical keys.
type Sink interface {
	UpsertRecords(ctx context.Context, table string, recs []KeyedRecord) error
}

// =============================================================================
// PIPELINE
// =============================================================================

// SourceBatch is one worksheet's worth of input: the spreadsheet matrix
// plus the identifiers the registry resolves mappings by.
type SourceBatch struct {
	SourceID      string   `json:"source_id"`
	WorksheetName string   `json:"worksheet_name"`
	Headers       []string `json:"headers"`
	Rows          [][]any  `json:"rows"`
}

// Pipeline runs sync batches against a registry and a store.
type Pipeline struct {
	Registry *mapping.Registry
	Sink     Sink
}

// Run ingests one batch. The returned report always covers every row;
// only configuration and storage failures surface as errors.
func (p *Pipeline) Run(ctx context.Context, batch SourceBatch) (*Report, error) {
	m, err := p.Registry.Lookup(batch.WorksheetName, batch.Headers)
	if err != nil {
		return nil, fmt.Errorf("resolving mapping for worksheet %q: %w", batch.WorksheetName, err)
	}

	rows := RowsFromMatrix(batch.Headers, batch.Rows)
	report, err := BatchTransform(rows, m, batch.SourceID)
	if err != nil {
		return nil, err
	}

	if p.Sink != nil && len(report.Valid) > 0 {
		if err := p.Sink.UpsertRecords(ctx, m.TargetEntity, report.Valid); err != nil {
			return nil, fmt.Errorf("upserting %d records into %q: %w", len(report.Valid), m.TargetEntity, err)
		}
	}
	return report, nil
}
