/*
registry.go - Runtime catalog of table mappings

PURPOSE:
  Holds every TableMapping, answers "which mapping does this worksheet use?",
  and supports runtime mutation: alias edits from the admin surface must take
  effect on the next sync without a process restart.

LOOKUP RESOLUTION:
  1. Match the source name case-insensitively against each mapping's
     SourceNamePatterns as substrings.
  2. If several mappings match and the caller supplied the actual header row
     (column hints), prefer the mapping whose REQUIRED fields have the
     highest alias-hit rate against those hints.
  3. Ties after scoring resolve to the earliest-registered mapping, so
     resolution stays deterministic across runs.

MUTATION SAFETY:
  Every mapping entering or leaving the registry is deep-copied. Callers can
  never mutate registry state through a returned reference; the system this
  replaces spread objects shallowly and shipped exactly that bug.

CONCURRENCY:
  RWMutex. Lookup/List take the read lock; Upsert/Remove/Replace the write
  lock. Replace swaps the whole catalog atomically (used by hot reload).

SEE ALSO:
  - watch.go: fsnotify-driven reload feeding Replace
  - ingest/pipeline.go: the consumer on the ingestion path
*/
package mapping

import (
	"fmt"
	"strings"
	"sync"
)

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize folds a source column name for comparison: trimmed and
// case-folded. Both row keys and aliases go through this before matching.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the runtime mapping catalog.
type Registry struct {
	mu       sync.RWMutex
	mappings []*TableMapping // registration order, used for tie-breaking
}

// NewRegistry creates a registry seeded with the given mappings.
// Invalid mappings are rejected.
func NewRegistry(mappings ...*TableMapping) (*Registry, error) {
	r := &Registry{}
	for _, m := range mappings {
		if err := r.Upsert(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Validate checks a mapping's structural invariants.
func Validate(m *TableMapping) error {
	if m == nil {
		return &InvalidMappingError{Reason: "mapping is nil"}
	}
	if m.TargetEntity == "" {
		return &InvalidMappingError{Reason: "target entity is empty"}
	}
	if len(m.SourceNamePatterns) == 0 {
		return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: "no source name patterns"}
	}
	if len(m.Fields) == 0 {
		return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: "no fields"}
	}
	seen := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		if f.Name == "" {
			return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: "field with empty canonical name"}
		}
		if seen[f.Name] {
			return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		seen[f.Name] = true
		if len(f.Aliases) == 0 {
			return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: fmt.Sprintf("field %q has no aliases", f.Name)}
		}
		switch f.Transform {
		case "", TransformNone, TransformDate, TransformNumber, TransformBoolean:
		default:
			return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: fmt.Sprintf("field %q has unknown transform %q", f.Name, f.Transform)}
		}
	}
	switch m.KeyStrategy {
	case KeyPositional, KeyNatural:
	default:
		return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: fmt.Sprintf("unknown key strategy %q", m.KeyStrategy)}
	}
	if m.EntityField != "" {
		if _, ok := m.Field(m.EntityField); !ok {
			return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: fmt.Sprintf("entity field %q is not a declared field", m.EntityField)}
		}
	}
	return nil
}

// Upsert adds a mapping or replaces the one with the same TargetEntity.
// The stored copy is deep; the caller keeps ownership of its argument.
func (r *Registry) Upsert(m *TableMapping) error {
	if err := Validate(m); err != nil {
		return err
	}
	stored := m.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.mappings {
		if existing.TargetEntity == stored.TargetEntity {
			r.mappings[i] = stored
			return nil
		}
	}
	r.mappings = append(r.mappings, stored)
	return nil
}

// Remove deletes the mapping for a target entity. Removing an unknown entity
// is not an error; the end state is the same.
func (r *Registry) Remove(targetEntity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.mappings {
		if m.TargetEntity == targetEntity {
			r.mappings = append(r.mappings[:i], r.mappings[i+1:]...)
			return
		}
	}
}

// Replace swaps the entire catalog atomically. Used by hot reload so a sync
// never observes a half-applied mappings file.
func (r *Registry) Replace(mappings []*TableMapping) error {
	copies := make([]*TableMapping, 0, len(mappings))
	seen := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		if err := Validate(m); err != nil {
			return err
		}
		if seen[m.TargetEntity] {
			return &InvalidMappingError{TargetEntity: m.TargetEntity, Reason: "duplicate target entity in catalog"}
		}
		seen[m.TargetEntity] = true
		copies = append(copies, m.Clone())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = copies
	return nil
}

// Get returns a deep copy of the mapping for a target entity.
func (r *Registry) Get(targetEntity string) (*TableMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.mappings {
		if m.TargetEntity == targetEntity {
			return m.Clone(), true
		}
	}
	return nil, false
}

// List returns deep copies of all mappings in registration order.
func (r *Registry) List() []*TableMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TableMapping, len(r.mappings))
	for i, m := range r.mappings {
		out[i] = m.Clone()
	}
	return out
}

// =============================================================================
// LOOKUP
// =============================================================================

// Lookup resolves a worksheet name to its mapping. columnHints, when
// non-empty, is the worksheet's actual header row and breaks ties between
// mappings whose patterns all match the name.
func (r *Registry) Lookup(sourceName string, columnHints []string) (*TableMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	normName := Normalize(sourceName)
	var candidates []*TableMapping
	var patternsTried []string
	for _, m := range r.mappings {
		patternsTried = append(patternsTried, m.SourceNamePatterns...)
		for _, p := range m.SourceNamePatterns {
			if strings.Contains(normName, Normalize(p)) {
				candidates = append(candidates, m)
				break
			}
		}
	}

	switch len(candidates) {
	case 0:
		return nil, &NotFoundError{SourceName: sourceName, PatternsTried: patternsTried}
	case 1:
		return candidates[0].Clone(), nil
	}

	if len(columnHints) == 0 {
		// Ambiguous with nothing to score against: earliest registered wins.
		return candidates[0].Clone(), nil
	}

	hints := make(map[string]bool, len(columnHints))
	for _, h := range columnHints {
		hints[Normalize(h)] = true
	}

	best := candidates[0]
	bestScore := requiredHitRate(best, hints)
	for _, c := range candidates[1:] {
		if s := requiredHitRate(c, hints); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best.Clone(), nil
}

// requiredHitRate scores how many of a mapping's required fields have at
// least one alias present in the header hints, as a fraction of required
// fields. Mappings without required fields score zero rather than dividing
// by zero.
func requiredHitRate(m *TableMapping, hints map[string]bool) float64 {
	required := m.RequiredFields()
	if len(required) == 0 {
		return 0
	}
	hit := 0
	for _, name := range required {
		f, _ := m.Field(name)
		for _, a := range f.Aliases {
			if hints[Normalize(a)] {
				hit++
				break
			}
		}
	}
	return float64(hit) / float64(len(required))
}
