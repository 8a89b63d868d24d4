/*
Package query answers ad-hoc cross-table analytic questions over the
loosely-typed payloads the ingestion path produced.

PURPOSE:
  KPI questions like "students taught by X who reached status Y in month Z"
  arrive as declarative conditions (normally translated from natural
  language by an external LLM - treated here as untrusted input). This
  package compiles those conditions into executable predicates, evaluates
  them per table with tolerant value matching, and intersects entity sets
  across tables.

PIPELINE (untrusted in, executable out):
  Draft Condition   - raw JSON from the translator; shape-validated only
  Resolved Condition- placeholders substituted, literals checked against the
                      observed value domain (out-of-domain -> confirmation)
  Predicate         - closed operator enum + compiled path AST; the ONLY
                      form the engine accepts

KEY CONCEPTS IN THIS FILE (types.go):
  - Operator:   closed enum; unknown spellings fail at parse time
  - Condition:  one declarative field-level constraint
  - Definition: numerator/denominator condition lists for a ratio KPI
  - Payload:    one stored row as the engine sees it

SEE ALSO:
  - compile.go: Condition -> Predicate
  - match.go:   smart (unit/currency tolerant) value matching
  - engine.go:  per-table evaluation and cross-table intersection
*/
package query

import (
	"fmt"
)

// =============================================================================
// OPERATORS - closed enum, unknown spellings are construction-time errors
// =============================================================================

// Operator is a comparison in a condition.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpExists   Operator = "exists"
)

// ParseOperator validates an operator spelling. A typo here must fail
// loudly: the system this replaces logged a warning and dropped the filter,
// silently inflating every denominator it touched.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains, OpExists:
		return op, nil
	default:
		return "", &CompileError{Field: "", Reason: fmt.Sprintf("unknown operator %q", s)}
	}
}

// =============================================================================
// CONDITIONS
// =============================================================================

// Condition is one declarative constraint, as received from the translator.
// Field is either a canonical column name or a semi-structured path of the
// form "container->key". Value may be a literal or a "$placeholder".
type Condition struct {
	Table       string `json:"table,omitempty"` // defaults to the engine's conventional table
	Field       string `json:"field"`
	Operator    string `json:"operator"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// Definition is a ratio KPI: |numerator ∩ denominator| / |denominator|.
// Numerator conditions are expected to refine the denominator's.
type Definition struct {
	Numerator   []Condition `json:"numerator"`
	Denominator []Condition `json:"denominator"`
}

// ValidateShape checks the structural contract on translator output before
// anything is compiled: both sides present, every condition carrying a
// field and an operator. Operator spellings and value domains are checked
// later, at compile time.
func (d *Definition) ValidateShape() error {
	if d == nil {
		return &CompileError{Reason: "query definition is nil"}
	}
	if len(d.Numerator) == 0 {
		return &CompileError{Reason: "query definition has no numerator conditions"}
	}
	if len(d.Denominator) == 0 {
		return &CompileError{Reason: "query definition has no denominator conditions"}
	}
	for _, side := range [][]Condition{d.Numerator, d.Denominator} {
		for _, c := range side {
			if c.Field == "" {
				return &CompileError{Reason: "condition missing field"}
			}
			if c.Operator == "" {
				return &CompileError{Field: c.Field, Reason: "condition missing operator"}
			}
		}
	}
	return nil
}

// =============================================================================
// PAYLOADS - stored rows as the engine sees them
// =============================================================================

// Payload is one stored row: the entity identifier the store derived at
// ingest time (normally the student email), the canonical fields, and the
// verbatim raw payload.
type Payload struct {
	EntityID string         `json:"entity_id"`
	Fields   map[string]any `json:"fields"`
	Raw      map[string]any `json:"raw"`
}

// Column resolves a top-level column: canonical fields first, then the raw
// payload's own columns. The raw payload container names ("raw", "raw_data",
// "raw_payload") resolve to the raw payload map itself, for path access.
func (p Payload) Column(name string) (any, bool) {
	switch name {
	case "raw", "raw_data", "raw_payload":
		return map[string]any(p.Raw), true
	}
	if v, ok := p.Fields[name]; ok {
		return v, true
	}
	v, ok := p.Raw[name]
	return v, ok
}

// EntitySet is the result of an evaluation: the entity identifiers
// satisfying every condition.
type EntitySet map[string]struct{}

// Intersect returns the entities present in both sets.
func (s EntitySet) Intersect(other EntitySet) EntitySet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(EntitySet)
	for e := range small {
		if _, ok := large[e]; ok {
			out[e] = struct{}{}
		}
	}
	return out
}

// Contains reports membership.
func (s EntitySet) Contains(entity string) bool {
	_, ok := s[entity]
	return ok
}
