package factory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/classly/reconcile-engine/mapping"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const validDocument = `{
  "mappings": [
    {
      "source_name_patterns": ["體驗課", "trial"],
      "target_entity": "trial_class_attendance",
      "entity_field": "student_email",
      "fields": [
        {"name": "student_email", "aliases": ["Email", "學生信箱"], "required": true},
        {"name": "class_date", "aliases": ["體驗課日期"], "required": true, "transform": "date"}
      ]
    }
  ]
}`

func writeTempMappings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mappings.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp mappings: %v", err)
	}
	return path
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseDocument_AppliesDefaults(t *testing.T) {
	// GIVEN: A document omitting source_type, key_strategy and transforms
	// THEN: The defaults land before validation

	mappings, err := ParseDocument([]byte(validDocument))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mappings) != 1 {
		t.Fatalf("expected 1 mapping, got %d", len(mappings))
	}

	m := mappings[0]
	if m.SourceType != "sheet" {
		t.Errorf("expected default source_type sheet, got %q", m.SourceType)
	}
	if m.KeyStrategy != mapping.KeyPositional {
		t.Errorf("expected default key_strategy positional, got %q", m.KeyStrategy)
	}
	if m.Fields[0].Transform != mapping.TransformNone {
		t.Errorf("expected default transform none, got %q", m.Fields[0].Transform)
	}
	if m.Fields[1].Transform != mapping.TransformDate {
		t.Errorf("explicit transform overwritten: %q", m.Fields[1].Transform)
	}
}

func TestParseDocument_Rejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not json", `{"mappings": [`},
		{"empty document", `{"mappings": []}`},
		{"missing target", `{"mappings": [{"source_name_patterns": ["x"], "fields": [{"name": "a", "aliases": ["A"]}]}]}`},
		{"bad transform", `{"mappings": [{"source_name_patterns": ["x"], "target_entity": "t", "fields": [{"name": "a", "aliases": ["A"], "transform": "uuid"}]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDocument([]byte(tc.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

// =============================================================================
// WATCHER
// =============================================================================

func TestNewWatcher_LoadsCatalogUpFront(t *testing.T) {
	// GIVEN: A registry seeded with nothing relevant
	// WHEN: A watcher starts on a valid file
	// THEN: The file's catalog is live before any file event fires

	path := writeTempMappings(t, validDocument)
	registry, err := mapping.NewRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w, err := NewWatcher(path, registry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if _, ok := registry.Get("trial_class_attendance"); !ok {
		t.Error("catalog not loaded at startup")
	}
}

func TestNewWatcher_FailsFastOnBadCatalog(t *testing.T) {
	path := writeTempMappings(t, `{"mappings": []}`)
	registry, _ := mapping.NewRegistry()

	if _, err := NewWatcher(path, registry); err == nil {
		t.Error("expected startup failure on an empty catalog")
	}
}

func TestReload_SwapsCatalog(t *testing.T) {
	// Reload is exercised directly: the debounced fsnotify plumbing only
	// schedules this call.

	path := writeTempMappings(t, validDocument)
	registry, _ := mapping.NewRegistry()
	w, err := NewWatcher(path, registry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.fs.Close()

	updated := `{
	  "mappings": [
	    {
	      "source_name_patterns": ["購買"],
	      "target_entity": "course_purchases",
	      "fields": [
	        {"name": "student_email", "aliases": ["Email"], "required": true}
	      ]
	    }
	  ]
	}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewriting mappings: %v", err)
	}
	w.reload()

	if _, ok := registry.Get("course_purchases"); !ok {
		t.Error("new catalog not live after reload")
	}
	if _, ok := registry.Get("trial_class_attendance"); ok {
		t.Error("old catalog still live after reload")
	}
}

func TestReload_BadFileKeepsPreviousCatalog(t *testing.T) {
	path := writeTempMappings(t, validDocument)
	registry, _ := mapping.NewRegistry()
	w, err := NewWatcher(path, registry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.fs.Close()

	if err := os.WriteFile(path, []byte(`{"mappings": [`), 0o644); err != nil {
		t.Fatalf("rewriting mappings: %v", err)
	}
	w.reload()

	if _, ok := registry.Get("trial_class_attendance"); !ok {
		t.Error("previous catalog lost after a failed reload")
	}

	if _, err := registry.Lookup("trial classes", nil); errors.Is(err, mapping.ErrMappingNotFound) {
		t.Error("lookup should still resolve against the previous catalog")
	}
}
