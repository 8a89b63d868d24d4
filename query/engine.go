/*
engine.go - Cross-table evaluation

PURPOSE:
  Evaluates compiled predicates against bounded samples of stored payloads:
  predicates grouped by table, one fetch per table (concurrent - the fetches
  are independent), AND semantics within a table, set intersection across
  tables. A multi-table query requires presence in EVERY referenced table.

FAILURE MODEL:
  Any fetch failure aborts the whole evaluation. There is no best-effort
  mode: a ratio over a silently partial denominator reads as precise and is
  simply wrong. Sampling caps are explicit and surfaced (UnderSampled) so a
  caller knows when a table hit its fetch limit.

RATIO KPIs:
  EvaluateKPI computes |numerator ∩ denominator| / |denominator|. Numerator
  conditions are expected to refine the denominator's; intersecting keeps
  the ratio in [0,1] even when the translator got that wrong, and a ratio
  outside [0,1] is treated as a logic error, never returned as a KPI.
*/
package query

import (
	"context"
	"math"
	"sort"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// PayloadFetcher hands back up to limit stored payloads for a logical
// table. Implementations perform the actual storage I/O and must respect
// ctx cancellation.
type PayloadFetcher interface {
	FetchPayloads(ctx context.Context, table string, limit int) ([]Payload, error)
}

// Translator is the external natural-language-to-conditions collaborator
// (an LLM behind an API). Its output is UNTRUSTED: always shape-validate
// and compile before execution.
type Translator interface {
	Translate(ctx context.Context, question string) (*Definition, error)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine evaluates predicates over stored payloads.
type Engine struct {
	Fetcher PayloadFetcher

	// SampleCap bounds rows fetched per table. Zero means DefaultSampleCap.
	SampleCap int
}

// Result is one side's evaluation outcome.
type Result struct {
	Entities     EntitySet
	UnderSampled bool // some table hit the fetch cap; counts may be low
}

// KPIResult is the analytic output for a ratio definition.
type KPIResult struct {
	NumeratorCount   int      `json:"numerator_count"`
	DenominatorCount int      `json:"denominator_count"`
	Ratio            float64  `json:"ratio"`
	SampleEntities   []string `json:"sample_entities"`
	UnderSampled     bool     `json:"under_sampled"`
}

// Evaluate computes the entity set satisfying every predicate. Predicates
// sharing a table are ANDed per row; per-table entity sets are intersected.
func (e *Engine) Evaluate(ctx context.Context, preds []Predicate) (Result, error) {
	if len(preds) == 0 {
		return Result{Entities: EntitySet{}}, nil
	}

	grouped := make(map[string][]Predicate)
	for _, p := range preds {
		grouped[p.Table] = append(grouped[p.Table], p)
	}

	fetched, underSampled, err := e.fetchAll(ctx, tableNames(grouped))
	if err != nil {
		return Result{}, err
	}

	var combined EntitySet
	for table, tablePreds := range grouped {
		entities := matchTable(fetched[table], tablePreds)
		if combined == nil {
			combined = entities
		} else {
			combined = combined.Intersect(entities)
		}
	}
	return Result{Entities: combined, UnderSampled: underSampled}, nil
}

// EvaluateKPI evaluates both sides of a compiled definition and combines
// them into a ratio.
func (e *Engine) EvaluateKPI(ctx context.Context, numerator, denominator []Predicate) (*KPIResult, error) {
	den, err := e.Evaluate(ctx, denominator)
	if err != nil {
		return nil, err
	}
	num, err := e.Evaluate(ctx, numerator)
	if err != nil {
		return nil, err
	}

	matched := num.Entities.Intersect(den.Entities)
	result := &KPIResult{
		NumeratorCount:   len(matched),
		DenominatorCount: len(den.Entities),
		SampleEntities:   sortedSample(matched, 20),
		UnderSampled:     num.UnderSampled || den.UnderSampled,
	}
	if result.DenominatorCount > 0 {
		result.Ratio = float64(result.NumeratorCount) / float64(result.DenominatorCount)
	}
	// Intersecting keeps the ratio in range by construction; the guard
	// stays because an out-of-range ratio must never leave as a KPI.
	if result.Ratio < 0 || result.Ratio > 1 || math.IsNaN(result.Ratio) {
		return nil, ErrRatioOutOfRange
	}
	return result, nil
}

// =============================================================================
// FETCHING - one concurrent fetch per referenced table
// =============================================================================

type fetchResult struct {
	table string
	rows  []Payload
	err   error
}

// fetchAll runs one fetch per table concurrently and waits for all of them.
// The first failure cancels the rest and aborts: no partial result ever
// leaves this function.
func (e *Engine) fetchAll(ctx context.Context, tables []string) (map[string][]Payload, bool, error) {
	limit := e.SampleCap
	if limit <= 0 {
		limit = DefaultSampleCap
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan fetchResult, len(tables))
	for _, table := range tables {
		go func(t string) {
			rows, err := e.Fetcher.FetchPayloads(ctx, t, limit)
			ch <- fetchResult{table: t, rows: rows, err: err}
		}(table)
	}

	fetched := make(map[string][]Payload, len(tables))
	underSampled := false
	var firstErr error
	for range tables {
		res := <-ch
		if res.err != nil {
			if firstErr == nil {
				firstErr = &QueryError{Table: res.table, Err: res.err}
				cancel()
			}
			continue
		}
		fetched[res.table] = res.rows
		if len(res.rows) >= limit {
			underSampled = true
		}
	}
	if firstErr != nil {
		return nil, false, firstErr
	}
	return fetched, underSampled, nil
}

// matchTable collects the entity identifiers of rows passing ALL of a
// table's predicates. Rows without an entity identifier cannot take part in
// cross-table intersection and are skipped.
func matchTable(rows []Payload, preds []Predicate) EntitySet {
	entities := make(EntitySet)
	for _, row := range rows {
		if row.EntityID == "" {
			continue
		}
		passed := true
		for _, p := range preds {
			if !p.Match(row) {
				passed = false
				break
			}
		}
		if passed {
			entities[row.EntityID] = struct{}{}
		}
	}
	return entities
}

func tableNames(grouped map[string][]Predicate) []string {
	names := make([]string, 0, len(grouped))
	for t := range grouped {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

func sortedSample(set EntitySet, n int) []string {
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
