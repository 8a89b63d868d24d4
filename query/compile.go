/*
compile.go - Condition -> executable predicate

PURPOSE:
  Compiles one declarative condition into a Predicate: operator parsed into
  the closed enum, semi-structured paths ("raw_data->teacher") parsed ONCE
  into a {Container, Key} AST, placeholders resolved against the caller's
  parameter map, and eq/in literals checked against a sampled domain of
  observed values.

TWO-PHASE CONTRACT:
  Compile never hands a half-trusted condition to the engine. The outcomes
  are exactly three:
    - a Predicate (executable)
    - a Confirmation (the literal is outside the observed domain, or a
      placeholder is still unresolved; caller must confirm and resubmit)
    - a CompileError (malformed; nothing to confirm, nothing to run)
  There is deliberately NO warn-and-pass-through path. The system this
  replaces had one, and a typo in an operator quietly turned a filter off.

SEE ALSO:
  - engine.go: consumes only Predicates
*/
package query

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// PATH AST
// =============================================================================

// FieldPath addresses a key inside a semi-structured container column.
// Built once at compile time; evaluation never re-parses the path string.
type FieldPath struct {
	Container string
	Key       string
}

// parsePath recognizes "container->key". Field names without the marker
// return nil. More than one marker is malformed - nested paths are not a
// thing in this data model.
func parsePath(field string) (*FieldPath, error) {
	if !strings.Contains(field, "->") {
		return nil, nil
	}
	parts := strings.Split(field, "->")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return nil, &CompileError{Field: field, Reason: "malformed path, want container->key"}
	}
	return &FieldPath{
		Container: strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[0]), "'\"")),
		Key:       strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[1]), "'\"")),
	}, nil
}

// =============================================================================
// PREDICATE
// =============================================================================

// Predicate is the executable form of one condition.
type Predicate struct {
	Table string
	Field string
	Path  *FieldPath // non-nil for semi-structured fields
	Op    Operator
	Value any
}

// resolve pulls the predicate's operand out of a payload. The bool reports
// whether the field resolved to a non-nil value (the "exists" semantics).
func (p Predicate) resolve(row Payload) (any, bool) {
	if p.Path != nil {
		container, ok := row.Column(p.Path.Container)
		if !ok || container == nil {
			return nil, false
		}
		m, isMap := container.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, ok := m[p.Path.Key]
		return v, ok && v != nil
	}
	v, ok := row.Column(p.Field)
	return v, ok && v != nil
}

// Match evaluates the predicate against one row.
func (p Predicate) Match(row Payload) bool {
	observed, present := p.resolve(row)

	switch p.Op {
	case OpExists:
		return present
	case OpEq:
		return present && SmartMatch(observed, p.Value)
	case OpNeq:
		return !present || !SmartMatch(observed, p.Value)
	case OpGt:
		cmp, ok := CompareNumeric(observed, p.Value)
		return present && ok && cmp > 0
	case OpGte:
		cmp, ok := CompareNumeric(observed, p.Value)
		return present && ok && cmp >= 0
	case OpLt:
		cmp, ok := CompareNumeric(observed, p.Value)
		return present && ok && cmp < 0
	case OpLte:
		cmp, ok := CompareNumeric(observed, p.Value)
		return present && ok && cmp <= 0
	case OpIn:
		if !present {
			return false
		}
		values, _ := p.Value.([]any)
		for _, v := range values {
			if SmartMatch(observed, v) {
				return true
			}
		}
		return false
	case OpContains:
		return present && ContainsFold(observed, p.Value)
	}
	// Unreachable: Compile rejects unknown operators.
	return false
}

// =============================================================================
// CONFIRMATION
// =============================================================================

// Confirmation defers a condition whose literal did not appear in the
// observed value domain (or whose placeholder is still unresolved). The
// caller shows Question/Options to a human, then resubmits the same
// definition with Params[PlaceholderKey] set.
type Confirmation struct {
	Question       string `json:"question"`
	Field          string `json:"field"`
	Options        []any  `json:"options"`
	UserInput      string `json:"user_input"`
	PlaceholderKey string `json:"placeholder_key"`
}

// =============================================================================
// COMPILER
// =============================================================================

// DomainSampler exposes the observed value domain for a field, sampled from
// storage. Implemented by the payload stores.
type DomainSampler interface {
	SampleDomain(ctx context.Context, table, field string, limit int) ([]any, error)
}

// Compiler turns draft conditions into predicates.
type Compiler struct {
	// DefaultTable receives conditions that name no table.
	DefaultTable string

	// Sampler, when set, enables the out-of-domain confirmation check for
	// eq/in literals. Nil disables the check (used by trusted internal
	// callers such as the edu KPI builders).
	Sampler DomainSampler

	// DomainSampleCap bounds the domain sample. Zero means DefaultSampleCap.
	DomainSampleCap int
}

// DefaultSampleCap bounds domain and payload sampling when the caller does
// not choose a cap.
const DefaultSampleCap = 1000

// Compile resolves one condition. Exactly one of the three returns is
// meaningful: a predicate, a confirmation, or an error.
func (c *Compiler) Compile(ctx context.Context, cond Condition, params map[string]any) (Predicate, *Confirmation, error) {
	op, err := ParseOperator(cond.Operator)
	if err != nil {
		return Predicate{}, nil, err
	}

	path, err := parsePath(cond.Field)
	if err != nil {
		return Predicate{}, nil, err
	}
	if path != nil && op == OpIn {
		// No store we target supports set membership inside a
		// semi-structured column; failing here beats pretending.
		return Predicate{}, nil, &CompileError{Field: cond.Field, Reason: `operator "in" is not supported on semi-structured paths`}
	}

	table := cond.Table
	if table == "" {
		table = c.DefaultTable
	}

	pred := Predicate{Table: table, Field: cond.Field, Path: path, Op: op}

	if op == OpExists {
		// exists ignores value entirely.
		return pred, nil, nil
	}

	value := cond.Value
	if key, isPlaceholder := placeholderKey(value); isPlaceholder {
		resolved, ok := params[key]
		if !ok {
			return Predicate{}, &Confirmation{
				Question:       fmt.Sprintf("What value should %q use for %s?", cond.Field, key),
				Field:          cond.Field,
				PlaceholderKey: key,
			}, nil
		}
		value = resolved
	}
	if op == OpIn {
		if _, isList := value.([]any); !isList {
			return Predicate{}, nil, &CompileError{Field: cond.Field, Reason: `operator "in" requires a list value`}
		}
	}
	pred.Value = value

	if conf, err := c.checkDomain(ctx, &pred, params); err != nil {
		return Predicate{}, nil, err
	} else if conf != nil {
		return Predicate{}, conf, nil
	}
	return pred, nil, nil
}

// CompileDefinition compiles both sides of a KPI definition. Confirmations
// from either side are accumulated; predicates are returned only when there
// are none.
func (c *Compiler) CompileDefinition(ctx context.Context, def *Definition, params map[string]any) (numerator, denominator []Predicate, confirmations []Confirmation, err error) {
	if err := def.ValidateShape(); err != nil {
		return nil, nil, nil, err
	}
	numerator, confirmations, err = c.compileSide(ctx, def.Numerator, params, confirmations)
	if err != nil {
		return nil, nil, nil, err
	}
	denominator, confirmations, err = c.compileSide(ctx, def.Denominator, params, confirmations)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(confirmations) > 0 {
		return nil, nil, confirmations, nil
	}
	return numerator, denominator, nil, nil
}

func (c *Compiler) compileSide(ctx context.Context, conds []Condition, params map[string]any, confirmations []Confirmation) ([]Predicate, []Confirmation, error) {
	preds := make([]Predicate, 0, len(conds))
	for _, cond := range conds {
		pred, conf, err := c.Compile(ctx, cond, params)
		if err != nil {
			return nil, nil, err
		}
		if conf != nil {
			confirmations = append(confirmations, *conf)
			continue
		}
		preds = append(preds, pred)
	}
	return preds, confirmations, nil
}

// checkDomain flags eq/in literals absent from the sampled value domain.
// A caller resubmitting after a confirmation supplies the corrected value
// under the confirmation's placeholder key; that override is taken as
// confirmed and replaces the literal. Path fields are skipped: raw-payload
// keys have no canonical domain worth sampling.
func (c *Compiler) checkDomain(ctx context.Context, pred *Predicate, params map[string]any) (*Confirmation, error) {
	if c.Sampler == nil || pred.Path != nil {
		return nil, nil
	}
	if pred.Op != OpEq && pred.Op != OpIn {
		return nil, nil
	}

	limit := c.DomainSampleCap
	if limit <= 0 {
		limit = DefaultSampleCap
	}
	domain, err := c.Sampler.SampleDomain(ctx, pred.Table, pred.Field, limit)
	if err != nil {
		return nil, &QueryError{Table: pred.Table, Err: fmt.Errorf("sampling value domain for %q: %w", pred.Field, err)}
	}
	if len(domain) == 0 {
		// Empty table or unknown field: nothing to check against.
		return nil, nil
	}

	key := "$" + pred.Field
	override, hasOverride := params[key]

	if pred.Op == OpIn {
		// The override replaces the out-of-domain MEMBER, never the list:
		// the predicate must stay a list or Match degrades to always-false.
		members := append([]any(nil), pred.Value.([]any)...)
		for i, member := range members {
			if domainContains(domain, member) {
				continue
			}
			if hasOverride {
				// Confirmed by the caller on resubmission.
				members[i] = override
				continue
			}
			return memberConfirmation(pred.Field, member, domain, key), nil
		}
		pred.Value = members
		return nil, nil
	}

	if domainContains(domain, pred.Value) {
		return nil, nil
	}
	if hasOverride {
		// Confirmed by the caller on resubmission.
		pred.Value = override
		return nil, nil
	}
	return memberConfirmation(pred.Field, pred.Value, domain, key), nil
}

func memberConfirmation(field string, target any, domain []any, key string) *Confirmation {
	return &Confirmation{
		Question: fmt.Sprintf("%v does not appear in the observed values of %q. Which value did you mean?",
			target, field),
		Field:          field,
		Options:        domain,
		UserInput:      fmt.Sprintf("%v", target),
		PlaceholderKey: key,
	}
}

func domainContains(domain []any, target any) bool {
	for _, v := range domain {
		if SmartMatch(v, target) {
			return true
		}
	}
	return false
}

// placeholderKey reports whether a condition value is a named placeholder
// ("$teacher_name") and returns its key.
func placeholderKey(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || len(s) < 2 || !strings.HasPrefix(s, "$") {
		return "", false
	}
	return s, true
}
