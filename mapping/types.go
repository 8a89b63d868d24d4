/*
Package mapping provides the declarative catalog of canonical table schemas.

PURPOSE:
  Spreadsheet sources name the same column in many ways ("Email", "email",
  "學生信箱", " 信箱 ") depending on language, phrasing, and sheet revision.
  The mapping catalog declares, per logical table, which canonical field each
  source spelling belongs to, whether the field is required, how its value is
  coerced, and how upsert keys are derived for records of that table.

KEY CONCEPTS IN THIS FILE (types.go):
  - FieldDef:     One canonical field with its ordered alias list
  - TableMapping: The complete schema for one logical table
  - Transform:    Declared value coercion (date, number, boolean, none)
  - KeyStrategy:  How the upsert key is derived for this table

DESIGN PRINCIPLES:
  1. Data, not code: mappings are plain configuration, editable at runtime
  2. Order matters: the FIRST alias that matches a source column wins
  3. Deep copies everywhere: registry state is never shared by reference

SEE ALSO:
  - registry.go: Lookup and runtime mutation
  - factory/:    Construction from JSON documents and hot reload
*/
package mapping

// =============================================================================
// TRANSFORMS AND KEY STRATEGIES
// =============================================================================

// Transform names the value coercion applied to a resolved raw value.
type Transform string

const (
	TransformNone    Transform = "none"
	TransformDate    Transform = "date"
	TransformNumber  Transform = "number"
	TransformBoolean Transform = "boolean"
)

// KeyStrategy selects how upsert keys are derived for a table's records.
type KeyStrategy string

const (
	// KeyPositional keys records by source identity (sourceId:rowIndex).
	KeyPositional KeyStrategy = "positional"
	// KeyNatural keys records by a natural key (email + day-truncated date).
	KeyNatural KeyStrategy = "naturalKey"
)

// =============================================================================
// FIELD DEFINITION
// =============================================================================

// FieldDef declares one canonical field and the source spellings that map
// to it. Aliases are consulted in declared order; the first one present in a
// row wins and later aliases are never looked at.
type FieldDef struct {
	Name      string    `json:"name"`
	Aliases   []string  `json:"aliases"`
	Required  bool      `json:"required"`
	Transform Transform `json:"transform,omitempty"`
}

func (f FieldDef) clone() FieldDef {
	out := f
	out.Aliases = append([]string(nil), f.Aliases...)
	return out
}

// =============================================================================
// TABLE MAPPING
// =============================================================================

// TableMapping is the full canonical schema for one logical table.
type TableMapping struct {
	// SourceType tags where rows of this table come from (e.g. "sheet").
	SourceType string `json:"source_type"`

	// SourceNamePatterns identify which physical worksheets map here.
	// Matched case-insensitively as substrings of the worksheet name.
	SourceNamePatterns []string `json:"source_name_patterns"`

	// TargetEntity is the logical table name records are written to.
	TargetEntity string `json:"target_entity"`

	// Fields, in declaration order.
	Fields []FieldDef `json:"fields"`

	// KeyStrategy picks the upsert key derivation for this table.
	KeyStrategy KeyStrategy `json:"key_strategy"`

	// EntityField names the canonical field holding the entity identifier
	// (normally the student email). The query engine intersects entity sets
	// across tables on this value.
	EntityField string `json:"entity_field,omitempty"`
}

// Clone returns a deep copy. Alias slices and field lists are copied so the
// caller cannot reach back into shared state. Shallow spreads of these
// structures were a real bug class in the system this replaces.
func (m *TableMapping) Clone() *TableMapping {
	if m == nil {
		return nil
	}
	out := *m
	out.SourceNamePatterns = append([]string(nil), m.SourceNamePatterns...)
	out.Fields = make([]FieldDef, len(m.Fields))
	for i, f := range m.Fields {
		out.Fields[i] = f.clone()
	}
	return &out
}

// Field returns the definition for a canonical field name, if declared.
func (m *TableMapping) Field(name string) (FieldDef, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// RequiredFields returns the canonical names of all required fields.
func (m *TableMapping) RequiredFields() []string {
	var out []string
	for _, f := range m.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}
