/*
Package edu implements the education-operations domain on top of the
reconciliation engine.

PURPOSE:
  The engine packages (mapping, ingest, query) are domain-agnostic. This
  package pins down the concrete catalog the company actually syncs - trial
  class attendance, course purchases, the student roster - and the KPI
  definitions operations asks about, chiefly trial-to-paid conversion.

ALIAS LISTS:
  The alias lists below are the observed spellings across sheet revisions
  and languages (zh-TW headers, English headers, and the occasional
  whitespace-padded variant). Order matters: the first alias present in a
  row wins. New spellings belong in the mappings file, not here; this
  catalog is the seed the file overrides.

SEE ALSO:
  - kpi.go:              KPI query definitions
  - factory/mapping.go:  file-based catalog overriding these seeds
*/
package edu

import (
	"github.com/classly/reconcile-engine/mapping"
)

// =============================================================================
// LOGICAL TABLES
// =============================================================================

const (
	TableTrialAttendance = "trial_class_attendance"
	TablePurchases       = "course_purchases"
	TableStudents        = "students"
)

// Conversion statuses observed in the purchase sheets.
const (
	StatusConverted     = "已轉高" // trial student converted to the full course
	StatusInNegotiation = "洽談中"
	StatusDeclined      = "未轉換"
)

// =============================================================================
// SEED CATALOG
// =============================================================================

// TrialAttendanceMapping is the canonical schema for trial-class
// attendance worksheets.
func TrialAttendanceMapping() *mapping.TableMapping {
	return &mapping.TableMapping{
		SourceType:         "sheet",
		SourceNamePatterns: []string{"體驗課", "trial"},
		TargetEntity:       TableTrialAttendance,
		KeyStrategy:        mapping.KeyPositional,
		EntityField:        "student_email",
		Fields: []mapping.FieldDef{
			{Name: "student_name", Aliases: []string{"姓名", "學生姓名", "name", "student name"}},
			{Name: "student_email", Aliases: []string{"email", "學生信箱", "信箱", "e-mail"}, Required: true},
			{Name: "class_date", Aliases: []string{"體驗課日期", "上課日期", "日期", "class date"}, Required: true, Transform: mapping.TransformDate},
			{Name: "teacher_name", Aliases: []string{"授課老師", "老師", "教師", "teacher"}},
			{Name: "attended", Aliases: []string{"是否出席", "出席", "attended"}, Transform: mapping.TransformBoolean},
			{Name: "lesson_count", Aliases: []string{"堂數", "已上堂數", "lessons"}, Transform: mapping.TransformNumber},
		},
	}
}

// PurchaseMapping is the canonical schema for course purchase worksheets.
func PurchaseMapping() *mapping.TableMapping {
	return &mapping.TableMapping{
		SourceType:         "sheet",
		SourceNamePatterns: []string{"購買", "成交", "purchase"},
		TargetEntity:       TablePurchases,
		KeyStrategy:        mapping.KeyNatural,
		EntityField:        "student_email",
		Fields: []mapping.FieldDef{
			{Name: "student_email", Aliases: []string{"email", "學生信箱", "信箱"}, Required: true},
			{Name: "purchase_date", Aliases: []string{"購買日期", "成交日期", "日期", "purchase date"}, Required: true, Transform: mapping.TransformDate},
			{Name: "package_price", Aliases: []string{"方案價格", "金額", "價格", "price"}, Transform: mapping.TransformNumber},
			{Name: "plan_name", Aliases: []string{"方案名稱", "方案", "plan"}},
			{Name: "status", Aliases: []string{"轉換狀態", "狀態", "status"}},
		},
	}
}

// StudentRosterMapping is the canonical schema for the student roster.
func StudentRosterMapping() *mapping.TableMapping {
	return &mapping.TableMapping{
		SourceType:         "sheet",
		SourceNamePatterns: []string{"學生名單", "roster", "student"},
		TargetEntity:       TableStudents,
		KeyStrategy:        mapping.KeyPositional,
		EntityField:        "student_email",
		Fields: []mapping.FieldDef{
			{Name: "student_email", Aliases: []string{"email", "學生信箱", "信箱"}, Required: true},
			{Name: "student_name", Aliases: []string{"姓名", "學生姓名", "name"}},
			{Name: "enrolled_date", Aliases: []string{"加入日期", "註冊日期", "enrolled"}, Transform: mapping.TransformDate},
			{Name: "is_active", Aliases: []string{"已上線", "是否啟用", "active"}, Transform: mapping.TransformBoolean},
		},
	}
}

// Mappings returns the full seed catalog.
func Mappings() []*mapping.TableMapping {
	return []*mapping.TableMapping{
		TrialAttendanceMapping(),
		PurchaseMapping(),
		StudentRosterMapping(),
	}
}

// NewRegistry builds a registry seeded with the education catalog.
func NewRegistry() (*mapping.Registry, error) {
	return mapping.NewRegistry(Mappings()...)
}
