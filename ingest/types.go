/*
Package ingest turns raw spreadsheet rows into canonical records.

PURPOSE:
  This package contains the ingestion-path algorithms: resolving a raw row's
  arbitrary column names against a mapping's alias lists, coercing values
  (dates, numbers, booleans in mixed locales), validating required fields,
  and deriving the deterministic upsert key the external store deduplicates
  on. It performs no I/O itself; everything here is a pure function of its
  inputs, safe to run per-row in parallel.

KEY CONCEPTS IN THIS FILE (types.go):
  - RawRow:          One source row, untrusted column names, scalar values
  - CanonicalRecord: Canonical fields + verbatim raw payload + provenance
  - Provenance:      Where a row came from (source id, row index)
  - ValidationOutcome: Required-field check result for one row

DESIGN PRINCIPLES:
  1. The raw payload is the audit trail: copied verbatim, never dropped,
     never mutated, no matter how badly the canonical side resolves
  2. Re-ingesting the same source row produces an equal record, so upserts
     are idempotent
  3. Coercion failure is data (null), not control flow (no panics, no
     exceptions aborting a batch)

SEE ALSO:
  - resolve.go:   Alias resolution against a row
  - transform.go: Value coercers
  - record.go:    Row -> record assembly and batch processing
  - key.go:       Tiered upsert key derivation
*/
package ingest

import (
	"github.com/classly/reconcile-engine/mapping"
)

// =============================================================================
// RAW INPUT
// =============================================================================

// RawRow is one source row: arbitrary column name -> scalar value.
// Values are whatever the source decoded to: string, float64, bool, or nil.
type RawRow map[string]any

// Clone deep-copies the row. Values are scalars, so copying the map is
// enough; nested structures never appear on the ingestion path.
func (r RawRow) Clone() RawRow {
	if r == nil {
		return nil
	}
	out := make(RawRow, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RowsFromMatrix pairs a header row with data rows, the shape spreadsheet
// APIs hand back. Rows shorter than the header are padded with nil; extra
// cells beyond the header are dropped.
func RowsFromMatrix(headers []string, matrix [][]any) []RawRow {
	rows := make([]RawRow, 0, len(matrix))
	for _, cells := range matrix {
		row := make(RawRow, len(headers))
		for i, h := range headers {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// =============================================================================
// CANONICAL OUTPUT
// =============================================================================

// Provenance records where a row came from.
type Provenance struct {
	SourceID string `json:"source_id"`
	RowIndex int    `json:"row_index"` // zero-based position within the source
}

// CanonicalRecord is the reconciled form of one raw row. Fields holds the
// transformed canonical values (nil where unresolved or uncoercible);
// RawPayload is the originating row, verbatim.
type CanonicalRecord struct {
	Fields     map[string]any `json:"fields"`
	RawPayload RawRow         `json:"raw_payload"`
	Provenance Provenance     `json:"provenance"`
}

// Field returns the canonical value, distinguishing "resolved to nil" from
// "never resolved" the way the validator needs.
func (c *CanonicalRecord) Field(name string) (any, bool) {
	v, ok := c.Fields[name]
	return v, ok
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationOutcome reports the required-field check for one record.
type ValidationOutcome struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// =============================================================================
// BATCH REPORT
// =============================================================================

// InvalidRow ties a failed row back to its position and reasons.
type InvalidRow struct {
	RowIndex int      `json:"row_index"`
	Errors   []string `json:"errors"`
}

// KeylessRow is a row that validated but produced no safe upsert key. It is
// reported separately from validation failures: the data may be fine, there
// is just no way to deduplicate it.
type KeylessRow struct {
	RowIndex int    `json:"row_index"`
	Reason   string `json:"reason"`
}

// Stats summarizes one batch.
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Keyless int `json:"keyless"`
}

// Report is the structured result of one ingestion run. Ingestion never
// throws on the first bad row; it always returns one of these.
type Report struct {
	RunID        string                `json:"run_id"`
	TargetEntity string                `json:"target_entity"`
	Valid        []KeyedRecord         `json:"-"`
	Invalid      []InvalidRow          `json:"invalid"`
	Keyless      []KeylessRow          `json:"keyless"`
	Stats        Stats                 `json:"stats"`
	Mapping      *mapping.TableMapping `json:"-"`
}

// KeyedRecord pairs a valid record with its derived upsert key and the
// entity identifier the query engine later intersects on (resolved from
// the mapping's EntityField; empty when the row has none).
type KeyedRecord struct {
	Key      Key
	EntityID string
	Record   CanonicalRecord
}
