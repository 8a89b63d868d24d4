/*
match.go - Smart value matching

PURPOSE:
  The same semantic value appears in different representations depending on
  which sheet produced it: "0 堂" vs 0, "NT$ 12,000" vs 12000, " 已轉高 "
  vs "已轉高". Equality filters that compare representations instead of
  values silently drop rows, so every comparison in the engine goes through
  SmartMatch.

ALGORITHM:
  1. Exact equality on comparable scalars short-circuits true
  2. If BOTH sides yield a number via ingest.ExtractNumber (currency and
     unit decoration stripped), compare numerically through decimal
  3. Otherwise fall back to trimmed, case-folded string equality

Ordering comparisons (gt/gte/lt/lte) are numeric-only: if either side does
not extract a number, the comparison is false rather than an arbitrary
lexical ordering across languages.
*/
package query

import (
	"fmt"
	"strings"

	"github.com/classly/reconcile-engine/ingest"
)

// SmartMatch reports whether an observed value and a condition target are
// semantically equal.
func SmartMatch(observed, target any) bool {
	if observed == nil || target == nil {
		return observed == nil && target == nil
	}
	if a, ok := ingest.ExtractNumber(observed); ok {
		if b, ok := ingest.ExtractNumber(target); ok {
			return a.Equal(b)
		}
	}
	return foldValue(observed) == foldValue(target)
}

// CompareNumeric orders two values numerically. ok is false when either
// side does not extract to a number.
func CompareNumeric(observed, target any) (cmp int, ok bool) {
	a, aok := ingest.ExtractNumber(observed)
	b, bok := ingest.ExtractNumber(target)
	if !aok || !bok {
		return 0, false
	}
	return a.Cmp(b), true
}

// ContainsFold reports whether the observed value's folded string form
// contains the target's.
func ContainsFold(observed, target any) bool {
	return strings.Contains(foldValue(observed), foldValue(target))
}

// foldValue renders a scalar into its normalized comparison form.
func foldValue(v any) string {
	switch s := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(s))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(s.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
	}
}
