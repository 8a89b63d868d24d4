/*
errors.go - Error types for compilation and evaluation

PURPOSE:
  Two hard failure classes, both loud by design:
  - CompileError: the condition itself is malformed (unknown operator,
    unsupported operator/path combination, unresolved placeholder). Never
    downgraded to a pass-through predicate.
  - QueryError: a per-table fetch failed. The whole evaluation aborts; a
    ratio computed from a partial denominator looks precise and is wrong.
*/
package query

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCompile is the root of all condition-compilation failures.
	ErrCompile = errors.New("condition compile error")

	// ErrQueryAborted is the root of all evaluation failures.
	ErrQueryAborted = errors.New("query aborted")

	// ErrRatioOutOfRange signals a logic error in the supplied conditions:
	// a KPI ratio left [0,1], which a correct refinement cannot produce.
	ErrRatioOutOfRange = errors.New("kpi ratio outside [0,1]; numerator does not refine denominator")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// CompileError reports a malformed condition.
type CompileError struct {
	Field  string
	Reason string
}

func (e *CompileError) Error() string {
	if e.Field == "" {
		return "compile error: " + e.Reason
	}
	return fmt.Sprintf("compile error on field %q: %s", e.Field, e.Reason)
}

func (e *CompileError) Unwrap() error {
	return ErrCompile
}

// QueryError reports which table's fetch sank the evaluation.
type QueryError struct {
	Table string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query aborted: fetch for table %q failed: %v", e.Table, e.Err)
}

func (e *QueryError) Unwrap() error {
	return ErrQueryAborted
}
