/*
key.go - Tiered upsert key derivation

PURPOSE:
  The external store decides insert-vs-update on a deterministic key. The
  key must come from the most specific identity actually present:

  1. Provenance tier:  sourceId:rowIndex - exact, wins when available
  2. Natural-key tier: normalizedEmail:dateTruncatedToDay
  3. Failure:          an explicit KeyError naming what was missing;
                       fabricating a key would silently duplicate data

DESIGN:
  Tiers are an ordered list of pure functions, each returning (key, ok) plus
  what it found missing. The generator takes the first ok. Each tier is
  testable alone and new tiers slot in without touching existing ones - the
  nested if/else with shared scratch state this replaces made both hard.

  A table's KeyStrategy chooses the tier ORDER: positional tables prefer
  provenance identity, natural-key tables prefer the email+date identity
  (their rows keep meaning across re-exports that renumber rows).

DETERMINISM:
  DeriveKey is a pure function of the record. Replaying the same record -
  including one rehydrated from storage - yields byte-identical keys, which
  is what makes re-ingestion idempotent.
*/
package ingest

import (
	"fmt"
	"strings"

	"github.com/classly/reconcile-engine/mapping"
)

// Key is a deterministic upsert key.
type Key string

// =============================================================================
// TIERS
// =============================================================================

// Tier is one key-derivation strategy. Derive returns the key and true when
// the tier applies; otherwise it returns false plus the inputs it found
// missing, so the final error can name them.
type Tier struct {
	Name   string
	Derive func(rec CanonicalRecord) (key Key, ok bool, missing []string)
}

// ProvenanceTier keys by exact source identity.
func ProvenanceTier() Tier {
	return Tier{
		Name: "provenance",
		Derive: func(rec CanonicalRecord) (Key, bool, []string) {
			var missing []string
			if rec.Provenance.SourceID == "" {
				missing = append(missing, "provenance.source_id")
			}
			if rec.Provenance.RowIndex < 0 {
				missing = append(missing, "provenance.row_index")
			}
			if len(missing) > 0 {
				return "", false, missing
			}
			return Key(fmt.Sprintf("%s:%d", rec.Provenance.SourceID, rec.Provenance.RowIndex)), true, nil
		},
	}
}

// NaturalKeyTier keys by normalized email plus day-truncated date. The
// canonical field names are discovered from the mapping: the first field
// whose name contains "email", and the first field declared with the date
// transform.
func NaturalKeyTier(m *mapping.TableMapping) Tier {
	emailField, dateField := naturalKeyFields(m)
	return Tier{
		Name: "natural",
		Derive: func(rec CanonicalRecord) (Key, bool, []string) {
			var missing []string

			email := ""
			if emailField == "" {
				missing = append(missing, "email-like field (none declared)")
			} else if v, ok := rec.Field(emailField); ok && v != nil {
				if s, isStr := v.(string); isStr && strings.TrimSpace(s) != "" {
					email = strings.ToLower(strings.TrimSpace(s))
				}
			}
			if emailField != "" && email == "" {
				missing = append(missing, emailField)
			}

			day := ""
			if dateField == "" {
				missing = append(missing, "date field (none declared)")
			} else if v, ok := rec.Field(dateField); ok && v != nil {
				if s, isStr := v.(string); isStr && s != "" {
					// Canonical dates are already "YYYY-MM-DD"; datetimes
					// from other paths truncate to the day.
					day = s
					if len(day) > 10 {
						day = day[:10]
					}
				}
			}
			if dateField != "" && day == "" {
				missing = append(missing, dateField)
			}

			if len(missing) > 0 {
				return "", false, missing
			}
			return Key(email + ":" + day), true, nil
		},
	}
}

func naturalKeyFields(m *mapping.TableMapping) (emailField, dateField string) {
	if m == nil {
		return "", ""
	}
	for _, f := range m.Fields {
		if emailField == "" && strings.Contains(strings.ToLower(f.Name), "email") {
			emailField = f.Name
		}
		if dateField == "" && f.Transform == mapping.TransformDate {
			dateField = f.Name
		}
	}
	return emailField, dateField
}

// =============================================================================
// GENERATOR
// =============================================================================

// KeyGenerator walks its tiers in order and returns the first key produced.
type KeyGenerator struct {
	tiers []Tier
}

// NewKeyGenerator builds the tier order for a table's key strategy.
func NewKeyGenerator(m *mapping.TableMapping) *KeyGenerator {
	prov, natural := ProvenanceTier(), NaturalKeyTier(m)
	if m != nil && m.KeyStrategy == mapping.KeyNatural {
		return &KeyGenerator{tiers: []Tier{natural, prov}}
	}
	return &KeyGenerator{tiers: []Tier{prov, natural}}
}

// NewKeyGeneratorWithTiers builds a generator from an explicit tier list.
func NewKeyGeneratorWithTiers(tiers ...Tier) *KeyGenerator {
	return &KeyGenerator{tiers: tiers}
}

// DeriveKey returns the first tier's key, or a KeyError naming everything
// every tier found missing.
func (g *KeyGenerator) DeriveKey(rec CanonicalRecord) (Key, error) {
	var allMissing []string
	for _, tier := range g.tiers {
		key, ok, missing := tier.Derive(rec)
		if ok {
			return key, nil
		}
		for _, m := range missing {
			allMissing = append(allMissing, tier.Name+": "+m)
		}
	}
	return "", &KeyError{Missing: allMissing}
}
