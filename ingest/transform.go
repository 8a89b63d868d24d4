/*
transform.go - Stateless value coercers

PURPOSE:
  The same semantic value arrives in many shapes depending on which sheet,
  language, and revision produced it: "2025/10/1" vs "2025-10-01", "NT$
  4,500" vs 4500, "是" vs "true" vs "有". The coercers here normalize those
  into canonical scalars.

CONTRACT:
  Every coercer is a pure function returning (value, ok). Unparseable input
  yields ok=false - never a panic, never an error that could abort a batch.
  The caller stores nil for ok=false; a required field that coerced to nil
  is reported by the validator, not here.

PRECISION:
  Numeric parsing goes through decimal.Decimal so "12,000.00" and 12000
  compare equal without floating-point drift; only the final canonical value
  is surfaced as float64 for JSON round-tripping.

SEE ALSO:
  - query/match.go: smart match, built on ExtractNumber below
*/
package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/classly/reconcile-engine/mapping"
)

// =============================================================================
// DATE
// =============================================================================

// dateLayouts are tried in order after AM/PM marker normalization.
// Go's non-padded layouts ("1", "2") also accept zero-padded input, so
// "2006-1-2" covers "2006-01-02".
var dateLayouts = []string{
	"2006/1/2",
	"2006-1-2",
	"2006/1/2 PM 3:04:05",
	"2006/1/2 3:04:05 PM",
	"2006-1-2 PM 3:04:05",
	"2006-1-2 3:04:05 PM",
	"2006/1/2 PM 3:04",
	"2006/1/2 3:04 PM",
	"2006-1-2 PM 3:04",
	"2006-1-2 3:04 PM",
	"2006/1/2 15:04:05",
	"2006-1-2 15:04:05",
	"2006/1/2 15:04",
	"2006-1-2 15:04",
	time.RFC3339,
}

var ampmReplacer = strings.NewReplacer("上午", " AM ", "下午", " PM ", "am", " AM ", "pm", " PM ", "AM", " AM ", "PM", " PM ")

var spaceRun = regexp.MustCompile(`\s+`)

// ParseDate coerces mixed-format date input to the canonical "YYYY-MM-DD"
// form. Date+time strings with localized AM/PM markers (上午/下午) are
// accepted; the time-of-day part is truncated away.
func ParseDate(v any) (string, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02"), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", false
		}
		s = spaceRun.ReplaceAllString(strings.TrimSpace(ampmReplacer.Replace(s)), " ")
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.Format("2006-01-02"), true
			}
		}
	}
	return "", false
}

// =============================================================================
// NUMBER
// =============================================================================

// numberPattern finds the first embedded numeric token after thousands
// separators are removed. Handles "NT$ 12,000", "2 堂", "第3週", "-1.5".
var numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// ExtractNumber pulls the embedded number out of currency-formatted or
// unit-suffixed input. Both the ingestion number transform and the query
// engine's smart match use this, so "0 堂" and 0 stay comparable on both
// paths.
func ExtractNumber(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case decimal.Decimal:
		return n, true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if s == "" {
			return decimal.Decimal{}, false
		}
		token := numberPattern.FindString(s)
		if token == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(token)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

// ParseNumber coerces currency/unit-decorated input to a plain float.
func ParseNumber(v any) (float64, bool) {
	d, ok := ExtractNumber(v)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// =============================================================================
// BOOLEAN
// =============================================================================

// boolVocabulary maps the localized truthy/falsy tokens observed across
// sources. Input outside this vocabulary is AMBIGUOUS and coerces to nil,
// never to false.
var boolVocabulary = map[string]bool{
	"是": true, "否": false,
	"true": true, "false": false,
	"有": true, "無": false, "无": false,
	"已上線": true, "未上線": false,
	"yes": true, "no": false,
	"y": true, "n": false,
	"1": true, "0": false,
}

// ParseBool maps a small fixed vocabulary of localized tokens to bool.
func ParseBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		mapped, ok := boolVocabulary[strings.ToLower(strings.TrimSpace(b))]
		return mapped, ok
	case float64:
		if b == 0 || b == 1 {
			return b == 1, true
		}
	}
	return false, false
}

// =============================================================================
// DISPATCH
// =============================================================================

// ApplyTransform runs the declared coercion. TransformNone trims string
// values and passes everything else through untouched.
func ApplyTransform(t mapping.Transform, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch t {
	case mapping.TransformDate:
		s, ok := ParseDate(v)
		if !ok {
			return nil, false
		}
		return s, true
	case mapping.TransformNumber:
		f, ok := ParseNumber(v)
		if !ok {
			return nil, false
		}
		return f, true
	case mapping.TransformBoolean:
		b, ok := ParseBool(v)
		if !ok {
			return nil, false
		}
		return b, true
	default: // TransformNone or unset
		if s, isStr := v.(string); isStr {
			return strings.TrimSpace(s), true
		}
		return v, true
	}
}
