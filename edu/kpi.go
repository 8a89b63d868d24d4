/*
kpi.go - Pre-built KPI query definitions

PURPOSE:
  The questions operations actually asks, expressed as query.Definitions
  whose numerators refine their denominators BY CONSTRUCTION - the
  numerator starts from the denominator's conditions and only adds more.
  That construction is what keeps the subset invariant (and therefore the
  ratio's [0,1] range) independent of what the data looks like.

These builders are the trusted-caller path: they bypass the LLM translator
entirely, so a compiler without a domain sampler is appropriate for them.

EXAMPLE:
  def := edu.TrialConversionRate("Vicky", "2025-10")
  num, den, _, err := compiler.CompileDefinition(ctx, def, nil)
  result, err := engine.EvaluateKPI(ctx, num, den)

SEE ALSO:
  - query/types.go: Definition semantics
  - mappings.go:    the canonical fields referenced here
*/
package edu

import (
	"github.com/classly/reconcile-engine/query"
)

// TrialConversionRate asks: of the students who took a trial class with
// the given teacher in the given month (YYYY-MM), what share converted to
// the full course?
func TrialConversionRate(teacherName, month string) *query.Definition {
	denominator := []query.Condition{
		{
			Table:       TableTrialAttendance,
			Field:       "teacher_name",
			Operator:    string(query.OpEq),
			Value:       teacherName,
			Description: "trial class taught by " + teacherName,
		},
		{
			Table:       TableTrialAttendance,
			Field:       "class_date",
			Operator:    string(query.OpContains),
			Value:       month,
			Description: "trial class during " + month,
		},
	}

	numerator := append(append([]query.Condition{}, denominator...), query.Condition{
		Table:       TablePurchases,
		Field:       "status",
		Operator:    string(query.OpEq),
		Value:       StatusConverted,
		Description: "converted to the full course",
	})

	return &query.Definition{Numerator: numerator, Denominator: denominator}
}

// AttendanceRate asks: of the students scheduled for a trial class in the
// given month, what share actually attended?
func AttendanceRate(month string) *query.Definition {
	denominator := []query.Condition{
		{
			Table:       TableTrialAttendance,
			Field:       "class_date",
			Operator:    string(query.OpContains),
			Value:       month,
			Description: "trial class during " + month,
		},
	}

	numerator := append(append([]query.Condition{}, denominator...), query.Condition{
		Table:       TableTrialAttendance,
		Field:       "attended",
		Operator:    string(query.OpEq),
		Value:       true,
		Description: "attended the class",
	})

	return &query.Definition{Numerator: numerator, Denominator: denominator}
}

// ActivePurchaserRate asks: of all students on the roster, what share has
// at least one purchase record?
func ActivePurchaserRate() *query.Definition {
	denominator := []query.Condition{
		{
			Table:       TableStudents,
			Field:       "student_email",
			Operator:    string(query.OpExists),
			Description: "on the student roster",
		},
	}

	numerator := append(append([]query.Condition{}, denominator...), query.Condition{
		Table:       TablePurchases,
		Field:       "purchase_date",
		Operator:    string(query.OpExists),
		Description: "has a purchase record",
	})

	return &query.Definition{Numerator: numerator, Denominator: denominator}
}
