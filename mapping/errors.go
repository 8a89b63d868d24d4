/*
errors.go - Error types for the mapping catalog

PURPOSE:
  A lookup miss is a configuration error: it aborts the ingestion run for
  that worksheet and must carry enough context (the name tried, the patterns
  consulted) for an operator to fix the catalog.

USAGE:
  if errors.Is(err, mapping.ErrMappingNotFound) {
      var nf *mapping.NotFoundError
      errors.As(err, &nf) // nf.SourceName, nf.PatternsTried
  }
*/
package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMappingNotFound is returned when no mapping matches a source name.
	ErrMappingNotFound = errors.New("no table mapping matches source name")

	// ErrInvalidMapping is returned when a mapping fails structural checks
	// (no target entity, no patterns, duplicate canonical field names).
	ErrInvalidMapping = errors.New("invalid table mapping")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError reports a lookup miss with everything that was tried.
type NotFoundError struct {
	SourceName    string
	PatternsTried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no table mapping matches source %q (patterns tried: %s)",
		e.SourceName, strings.Join(e.PatternsTried, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrMappingNotFound
}

// InvalidMappingError reports a structural problem in a mapping definition.
type InvalidMappingError struct {
	TargetEntity string
	Reason       string
}

func (e *InvalidMappingError) Error() string {
	return fmt.Sprintf("invalid mapping for %q: %s", e.TargetEntity, e.Reason)
}

func (e *InvalidMappingError) Unwrap() error {
	return ErrInvalidMapping
}
