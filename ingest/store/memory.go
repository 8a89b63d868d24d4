// Package store provides an in-memory payload store (for testing/dev).
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/classly/reconcile-engine/ingest"
	"github.com/classly/reconcile-engine/query"
)

// =============================================================================
// MEMORY STORE - implements ingest.Sink, query.PayloadFetcher,
// query.DomainSampler
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[ingest.Key]ingest.KeyedRecord
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[ingest.Key]ingest.KeyedRecord)}
}

// UpsertRecords inserts or replaces records by upsert key.
func (m *Memory) UpsertRecords(_ context.Context, table string, recs []ingest.KeyedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tables[table]
	if t == nil {
		t = make(map[ingest.Key]ingest.KeyedRecord)
		m.tables[table] = t
	}
	for _, r := range recs {
		t[r.Key] = r
	}
	return nil
}

// Count returns the number of stored records for a table.
func (m *Memory) Count(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}

// FetchPayloads returns up to limit payloads in key order (deterministic
// for tests; the production store orders by ingestion time).
func (m *Memory) FetchPayloads(ctx context.Context, table string, limit int) ([]query.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.tables[table]))
	for k := range m.tables[table] {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	out := make([]query.Payload, 0, len(keys))
	for _, k := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec := m.tables[table][ingest.Key(k)]
		out = append(out, query.Payload{
			EntityID: rec.EntityID,
			Fields:   rec.Record.Fields,
			Raw:      map[string]any(rec.Record.RawPayload),
		})
	}
	return out, nil
}

// SampleDomain returns the distinct observed values of a canonical field.
func (m *Memory) SampleDomain(ctx context.Context, table, field string, limit int) ([]any, error) {
	rows, err := m.FetchPayloads(ctx, table, limit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []any
	for _, row := range rows {
		v, ok := row.Column(field)
		if !ok || v == nil {
			continue
		}
		key := asKey(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out, nil
}

func asKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}
