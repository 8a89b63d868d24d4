/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  The engine treats storage as an external collaborator: the ingestion path
  hands over keyed records (ingest.Sink), the query path reads bounded
  payload samples (query.PayloadFetcher) and observed value domains
  (query.DomainSampler). This package is the reference implementation the
  dev server and tests run on; in production the same patterns apply to
  Postgres/Supabase with only dialect differences.

INTERFACES IMPLEMENTED:
  ingest.Sink:          UpsertRecords, keyed on (table_name, upsert_key)
  query.PayloadFetcher: FetchPayloads with an explicit LIMIT cap
  query.DomainSampler:  SampleDomain via json_extract over canonical fields

UPSERT SEMANTICS:
  INSERT .. ON CONFLICT(table_name, upsert_key) DO UPDATE. The unique key
  comes from the tiered key generator, so re-ingesting the same source rows
  updates in place instead of duplicating. The raw payload is stored as an
  opaque JSON column next to the canonical fields - it is the audit trail
  and survives every re-sync.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, one writer
  at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/ops.db")   // ":memory:" for tests
  defer store.Close()

SEE ALSO:
  - ingest/pipeline.go: the write-side consumer
  - query/engine.go:    the read-side consumer
  - ingest/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/classly/reconcile-engine/ingest"
	"github.com/classly/reconcile-engine/query"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS payloads (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		table_name  TEXT NOT NULL,
		upsert_key  TEXT NOT NULL,
		entity_id   TEXT NOT NULL DEFAULT '',
		canonical   TEXT NOT NULL,           -- canonical fields, JSON
		raw         TEXT NOT NULL,           -- verbatim raw payload, JSON
		source_id   TEXT NOT NULL DEFAULT '',
		row_index   INTEGER NOT NULL DEFAULT 0,
		ingested_at TIMESTAMP NOT NULL,
		UNIQUE(table_name, upsert_key)
	);
	CREATE INDEX IF NOT EXISTS idx_payloads_table ON payloads(table_name, id);
	CREATE INDEX IF NOT EXISTS idx_payloads_entity ON payloads(table_name, entity_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INGEST.SINK
// =============================================================================

// UpsertRecords writes one batch inside a transaction: all records land or
// none do. Conflicts on (table_name, upsert_key) update in place.
func (s *Store) UpsertRecords(ctx context.Context, table string, recs []ingest.KeyedRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO payloads (table_name, upsert_key, entity_id, canonical, raw, source_id, row_index, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, upsert_key) DO UPDATE SET
			entity_id   = excluded.entity_id,
			canonical   = excluded.canonical,
			raw         = excluded.raw,
			source_id   = excluded.source_id,
			row_index   = excluded.row_index,
			ingested_at = excluded.ingested_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		canonical, err := json.Marshal(rec.Record.Fields)
		if err != nil {
			return fmt.Errorf("marshal canonical fields for key %q: %w", rec.Key, err)
		}
		raw, err := json.Marshal(rec.Record.RawPayload)
		if err != nil {
			return fmt.Errorf("marshal raw payload for key %q: %w", rec.Key, err)
		}
		if _, err := stmt.ExecContext(ctx, table, string(rec.Key), rec.EntityID,
			string(canonical), string(raw),
			rec.Record.Provenance.SourceID, rec.Record.Provenance.RowIndex, now); err != nil {
			return fmt.Errorf("upsert key %q into %q: %w", rec.Key, table, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// QUERY.PAYLOADFETCHER
// =============================================================================

// FetchPayloads returns up to limit payloads for a logical table, oldest
// first. The limit is the engine's explicit sampling cap.
func (s *Store) FetchPayloads(ctx context.Context, table string, limit int) ([]query.Payload, error) {
	if limit <= 0 {
		limit = query.DefaultSampleCap
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, canonical, raw FROM payloads WHERE table_name = ? ORDER BY id LIMIT ?`,
		table, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch payloads for %q: %w", table, err)
	}
	defer rows.Close()

	var out []query.Payload
	for rows.Next() {
		var entityID, canonical, raw string
		if err := rows.Scan(&entityID, &canonical, &raw); err != nil {
			return nil, fmt.Errorf("scan payload row: %w", err)
		}
		p := query.Payload{EntityID: entityID}
		if err := json.Unmarshal([]byte(canonical), &p.Fields); err != nil {
			return nil, fmt.Errorf("decode canonical fields: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &p.Raw); err != nil {
			return nil, fmt.Errorf("decode raw payload: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// QUERY.DOMAINSAMPLER
// =============================================================================

// SampleDomain returns the distinct observed values of a canonical field,
// capped at limit.
func (s *Store) SampleDomain(ctx context.Context, table, field string, limit int) ([]any, error) {
	if strings.ContainsAny(field, `"'`) {
		return nil, fmt.Errorf("invalid field name %q", field)
	}
	if limit <= 0 {
		limit = query.DefaultSampleCap
	}
	// The json_extract path is built from the validated field name; all
	// values stay parameterized.
	expr := `json_extract(canonical, '$."` + field + `"')`
	q := `SELECT DISTINCT ` + expr + ` FROM payloads WHERE table_name = ? AND ` + expr + ` IS NOT NULL LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, table, limit)
	if err != nil {
		return nil, fmt.Errorf("sample domain for %s.%s: %w", table, field, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan domain value: %w", err)
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountPayloads reports how many records a logical table holds.
func (s *Store) CountPayloads(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payloads WHERE table_name = ?`, table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payloads for %q: %w", table, err)
	}
	return n, nil
}
