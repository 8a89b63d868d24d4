package mapping_test

import (
	"errors"
	"testing"

	"github.com/classly/reconcile-engine/mapping"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func attendanceMapping() *mapping.TableMapping {
	return &mapping.TableMapping{
		SourceType:         "sheet",
		SourceNamePatterns: []string{"體驗課", "trial"},
		TargetEntity:       "trial_class_attendance",
		KeyStrategy:        mapping.KeyPositional,
		Fields: []mapping.FieldDef{
			{Name: "student_email", Aliases: []string{"Email", "學生信箱"}, Required: true},
			{Name: "class_date", Aliases: []string{"體驗課日期"}, Required: true, Transform: mapping.TransformDate},
		},
	}
}

func purchaseMapping() *mapping.TableMapping {
	return &mapping.TableMapping{
		SourceType:         "sheet",
		SourceNamePatterns: []string{"購買", "trial"}, // "trial" overlaps attendance on purpose
		TargetEntity:       "course_purchases",
		KeyStrategy:        mapping.KeyNatural,
		Fields: []mapping.FieldDef{
			{Name: "student_email", Aliases: []string{"Email"}, Required: true},
			{Name: "purchase_date", Aliases: []string{"購買日期"}, Required: true, Transform: mapping.TransformDate},
		},
	}
}

func newRegistry(t *testing.T, mappings ...*mapping.TableMapping) *mapping.Registry {
	t.Helper()
	r, err := mapping.NewRegistry(mappings...)
	if err != nil {
		t.Fatalf("unexpected error building registry: %v", err)
	}
	return r
}

// =============================================================================
// LOOKUP
// =============================================================================

func TestLookup_CaseInsensitiveSubstring(t *testing.T) {
	// GIVEN: A mapping with pattern "trial"
	// WHEN: Looking up "2025 TRIAL Classes (Oct)"
	// THEN: The mapping resolves despite casing and surrounding text

	r := newRegistry(t, attendanceMapping())
	m, err := r.Lookup("2025 TRIAL Classes (Oct)", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TargetEntity != "trial_class_attendance" {
		t.Errorf("expected trial_class_attendance, got %s", m.TargetEntity)
	}
}

func TestLookup_Miss_ReturnsNotFoundWithPatterns(t *testing.T) {
	// GIVEN: A registry with one mapping
	// WHEN: Looking up a worksheet no pattern matches
	// THEN: NotFoundError carries the name tried and the patterns consulted

	r := newRegistry(t, attendanceMapping())
	_, err := r.Lookup("薪資計算", nil)
	if !errors.Is(err, mapping.ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound, got %v", err)
	}
	var nf *mapping.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if nf.SourceName != "薪資計算" || len(nf.PatternsTried) == 0 {
		t.Errorf("error lacks context: %+v", nf)
	}
}

func TestLookup_ColumnHintsBreakTies(t *testing.T) {
	// GIVEN: Two mappings whose patterns both match "trial"
	// WHEN: Looking up with the purchase sheet's actual header row
	// THEN: The mapping whose required aliases hit the headers wins

	r := newRegistry(t, attendanceMapping(), purchaseMapping())

	m, err := r.Lookup("trial conversions", []string{"Email", "購買日期"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TargetEntity != "course_purchases" {
		t.Errorf("hints should prefer course_purchases, got %s", m.TargetEntity)
	}

	m, err = r.Lookup("trial conversions", []string{" email ", "體驗課日期"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TargetEntity != "trial_class_attendance" {
		t.Errorf("hints should prefer trial_class_attendance, got %s", m.TargetEntity)
	}
}

func TestLookup_NoHints_TieFallsBackToRegistrationOrder(t *testing.T) {
	r := newRegistry(t, attendanceMapping(), purchaseMapping())
	m, err := r.Lookup("trial", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TargetEntity != "trial_class_attendance" {
		t.Errorf("expected earliest-registered mapping, got %s", m.TargetEntity)
	}
}

// =============================================================================
// MUTATION SAFETY
// =============================================================================

func TestRegistry_ReturnedMappingsAreDeepCopies(t *testing.T) {
	// GIVEN: A registry holding a mapping
	// WHEN: A caller mutates the alias list of a returned reference
	// THEN: The registry's own state is untouched

	r := newRegistry(t, attendanceMapping())

	got, _ := r.Get("trial_class_attendance")
	got.Fields[0].Aliases[0] = "HACKED"
	got.SourceNamePatterns[0] = "HACKED"

	fresh, _ := r.Get("trial_class_attendance")
	if fresh.Fields[0].Aliases[0] != "Email" {
		t.Errorf("alias mutated through returned reference: %v", fresh.Fields[0].Aliases)
	}
	if fresh.SourceNamePatterns[0] != "體驗課" {
		t.Errorf("pattern mutated through returned reference: %v", fresh.SourceNamePatterns)
	}
}

func TestRegistry_UpsertCopiesItsArgument(t *testing.T) {
	r := newRegistry(t)
	m := attendanceMapping()
	if err := r.Upsert(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating the caller's struct after Upsert must not leak in.
	m.Fields[0].Aliases[0] = "HACKED"

	stored, _ := r.Get("trial_class_attendance")
	if stored.Fields[0].Aliases[0] != "Email" {
		t.Errorf("registry shares state with caller's argument")
	}
}

func TestRegistry_UpsertReplacesByTargetEntity(t *testing.T) {
	r := newRegistry(t, attendanceMapping())

	updated := attendanceMapping()
	updated.Fields[0].Aliases = append(updated.Fields[0].Aliases, "學員信箱")
	if err := r.Upsert(updated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(r.List()); got != 1 {
		t.Fatalf("expected 1 mapping after replace, got %d", got)
	}
	stored, _ := r.Get("trial_class_attendance")
	if len(stored.Fields[0].Aliases) != 3 {
		t.Errorf("expected updated alias list, got %v", stored.Fields[0].Aliases)
	}
}

func TestRegistry_ReplaceSwapsCatalogAtomically(t *testing.T) {
	// GIVEN: A registry with the attendance mapping
	// WHEN: Replace installs a catalog containing only purchases
	// THEN: Attendance is gone, purchases resolve

	r := newRegistry(t, attendanceMapping())
	if err := r.Replace([]*mapping.TableMapping{purchaseMapping()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := r.Get("trial_class_attendance"); ok {
		t.Error("old catalog still visible after Replace")
	}
	if _, ok := r.Get("course_purchases"); !ok {
		t.Error("new catalog not visible after Replace")
	}
}

func TestRegistry_ReplaceRejectsInvalidCatalogAndKeepsOld(t *testing.T) {
	r := newRegistry(t, attendanceMapping())

	bad := purchaseMapping()
	bad.Fields = nil
	if err := r.Replace([]*mapping.TableMapping{bad}); err == nil {
		t.Fatal("expected error for invalid catalog")
	}

	if _, ok := r.Get("trial_class_attendance"); !ok {
		t.Error("previous catalog lost after failed Replace")
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_RejectsStructuralProblems(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*mapping.TableMapping)
	}{
		{"empty target", func(m *mapping.TableMapping) { m.TargetEntity = "" }},
		{"no patterns", func(m *mapping.TableMapping) { m.SourceNamePatterns = nil }},
		{"no fields", func(m *mapping.TableMapping) { m.Fields = nil }},
		{"duplicate field", func(m *mapping.TableMapping) { m.Fields = append(m.Fields, m.Fields[0]) }},
		{"field without aliases", func(m *mapping.TableMapping) { m.Fields[0].Aliases = nil }},
		{"unknown transform", func(m *mapping.TableMapping) { m.Fields[0].Transform = "uuid" }},
		{"unknown key strategy", func(m *mapping.TableMapping) { m.KeyStrategy = "random" }},
		{"undeclared entity field", func(m *mapping.TableMapping) { m.EntityField = "ghost" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := attendanceMapping()
			tc.mutate(m)
			if err := mapping.Validate(m); !errors.Is(err, mapping.ErrInvalidMapping) {
				t.Errorf("expected ErrInvalidMapping, got %v", err)
			}
		})
	}
}
