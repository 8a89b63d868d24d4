/*
record.go - Row -> canonical record assembly and batch processing

PURPOSE:
  Combines the resolver and the transforms into the per-row contract:
  resolve every declared field, coerce it, keep the raw row verbatim, and
  report which required fields are missing. The batch variant runs every row
  independently - one bad row never aborts a sync.

INVARIANTS:
  - RawPayload is copied unconditionally, even when zero fields resolve.
    Raw data is the audit trail; losing it is the one unforgivable failure.
  - A coercion failure stores nil (TransformError is a warning, not a row
    failure) UNLESS the field is required, in which case the row is invalid
    and the error says whether the field was absent or just uncoercible.
  - Rows are independent: the batch report is a pure fold over per-row
    results, so per-row parallelism stays safe if it is ever wanted.
*/
package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/classly/reconcile-engine/mapping"
)

// =============================================================================
// SINGLE ROW
// =============================================================================

// Transform builds the canonical record for one raw row and reports its
// required-field validation outcome.
func Transform(row RawRow, m *mapping.TableMapping, prov Provenance) (CanonicalRecord, ValidationOutcome) {
	record := CanonicalRecord{
		Fields:     make(map[string]any, len(m.Fields)),
		RawPayload: row.Clone(),
		Provenance: prov,
	}
	outcome := ValidationOutcome{Valid: true}

	idx := indexRow(row)
	for _, f := range m.Fields {
		raw, resolved := idx.Resolve(f)

		var value any
		coerced := false
		if resolved && raw != nil {
			if v, ok := ApplyTransform(f.Transform, raw); ok {
				value, coerced = v, true
			}
		}
		record.Fields[f.Name] = value

		if !f.Required {
			continue
		}
		switch {
		case !resolved:
			outcome.Valid = false
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("required field %q not found (aliases tried: %v)", f.Name, f.Aliases))
		case !coerced:
			outcome.Valid = false
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("required field %q could not be coerced to %s from %v", f.Name, transformName(f.Transform), raw))
		case isEmpty(value):
			outcome.Valid = false
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("required field %q is empty", f.Name))
		}
	}
	return record, outcome
}

func transformName(t mapping.Transform) mapping.Transform {
	if t == "" {
		return mapping.TransformNone
	}
	return t
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// =============================================================================
// BATCH
// =============================================================================

// BatchTransform processes a whole worksheet: every row transformed,
// validated, and keyed independently. The returned report always covers
// every input row; nothing short-circuits.
func BatchTransform(rows []RawRow, m *mapping.TableMapping, sourceID string) (*Report, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	report := &Report{
		RunID:        uuid.NewString(),
		TargetEntity: m.TargetEntity,
		Mapping:      m.Clone(),
	}
	keygen := NewKeyGenerator(m)

	for i, row := range rows {
		report.Stats.Total++
		record, outcome := Transform(row, m, Provenance{SourceID: sourceID, RowIndex: i})

		if !outcome.Valid {
			report.Stats.Invalid++
			report.Invalid = append(report.Invalid, InvalidRow{RowIndex: i, Errors: outcome.Errors})
			continue
		}

		key, err := keygen.DeriveKey(record)
		if err != nil {
			report.Stats.Keyless++
			report.Keyless = append(report.Keyless, KeylessRow{RowIndex: i, Reason: err.Error()})
			continue
		}

		report.Stats.Valid++
		report.Valid = append(report.Valid, KeyedRecord{
			Key:      key,
			EntityID: entityID(record, m),
			Record:   record,
		})
	}
	return report, nil
}

// entityID pulls the cross-table entity identifier out of a record: the
// mapping's declared EntityField, else the first email-like field.
func entityID(rec CanonicalRecord, m *mapping.TableMapping) string {
	name := m.EntityField
	if name == "" {
		name, _ = naturalKeyFields(m)
	}
	if name == "" {
		return ""
	}
	if v, ok := rec.Fields[name]; ok && v != nil {
		if s, isStr := v.(string); isStr {
			return strings.ToLower(strings.TrimSpace(s))
		}
	}
	return ""
}
