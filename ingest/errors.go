/*
errors.go - Error types for the ingestion path

PURPOSE:
  Ingestion distinguishes three failure classes with different blast radii:
  - Configuration errors (no mapping) abort the run; they live in mapping/
  - Validation errors are per-row data, collected in the batch report
  - Key errors mean a valid-looking row cannot be safely upserted; they are
    reported separately because the data itself may be fine

USAGE:
  var keyErr *ingest.KeyError
  if errors.As(err, &keyErr) {
      log.Printf("row cannot be deduplicated, missing: %v", keyErr.Missing)
  }
*/
package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoKey is returned when no key tier can derive an upsert key.
	ErrNoKey = errors.New("no upsert key derivable")

	// ErrNilMapping is returned when a transform is attempted without a mapping.
	ErrNilMapping = errors.New("table mapping is nil")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// KeyError names exactly which inputs each key tier was missing, so the
// operator can see why a record was excluded from upsert instead of getting
// a fabricated key.
type KeyError struct {
	Missing []string // e.g. "provenance.source_id", "student_email"
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("no upsert key derivable: missing %s", strings.Join(e.Missing, ", "))
}

func (e *KeyError) Unwrap() error {
	return ErrNoKey
}
