/*
Package factory provides JSON to Go mapping conversion.

PURPOSE:
  Converts JSON mapping documents into mapping.TableMapping objects. This
  enables schema configuration without code changes - operations staff can
  rename columns and add aliases from the admin UI, and the catalog takes
  effect on the next sync.

WHY JSON?
  - Non-developers can edit alias lists
  - Easy integration with the admin UI
  - Version control for mapping documents
  - The same document loads at startup and on hot reload

JSON SCHEMA:
  {
    "mappings": [
      {
        "source_type": "sheet",
        "source_name_patterns": ["體驗課", "trial"],
        "target_entity": "trial_class_attendance",
        "key_strategy": "positional",
        "entity_field": "student_email",
        "fields": [
          {"name": "student_email", "aliases": ["Email", "學生信箱"],
           "required": true},
          {"name": "class_date", "aliases": ["體驗課日期", "日期"],
           "required": true, "transform": "date"}
        ]
      }
    ]
  }

USAGE:
  mappings, err := factory.ParseDocument(jsonBytes)
  mappings, err := factory.LoadFile("./config/mappings.json")

SEE ALSO:
  - mapping/registry.go: where parsed mappings live at runtime
  - watch.go:            hot reload of the mappings file
  - edu/mappings.go:     the built-in education-domain catalog
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/classly/reconcile-engine/mapping"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// Document is the top-level mappings file.
type Document struct {
	Mappings []*mapping.TableMapping `json:"mappings"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseDocument decodes and validates a mappings document. Defaults are
// applied before validation: missing source_type becomes "sheet", missing
// key_strategy becomes "positional", missing transform becomes "none".
func ParseDocument(data []byte) ([]*mapping.TableMapping, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding mappings document: %w", err)
	}
	if len(doc.Mappings) == 0 {
		return nil, fmt.Errorf("mappings document contains no mappings")
	}
	for _, m := range doc.Mappings {
		applyDefaults(m)
		if err := mapping.Validate(m); err != nil {
			return nil, err
		}
	}
	return doc.Mappings, nil
}

// LoadFile reads and parses a mappings file.
func LoadFile(path string) ([]*mapping.TableMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mappings file: %w", err)
	}
	return ParseDocument(data)
}

func applyDefaults(m *mapping.TableMapping) {
	if m == nil {
		return
	}
	if m.SourceType == "" {
		m.SourceType = "sheet"
	}
	if m.KeyStrategy == "" {
		m.KeyStrategy = mapping.KeyPositional
	}
	for i := range m.Fields {
		if m.Fields[i].Transform == "" {
			m.Fields[i].Transform = mapping.TransformNone
		}
	}
}
