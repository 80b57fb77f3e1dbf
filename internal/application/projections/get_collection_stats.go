package projections

import (
	"lodge/internal/domain/attendance"
	"lodge/internal/domain/document"
	"lodge/internal/domain/member"
	"lodge/internal/domain/program"
)

// MemberStats summarizes the held page of members.
type MemberStats struct {
	Total         int
	ByGrade       []Share
	ByStatus      []Share
	ActivePercent float64
}

// QueryMemberStats computes member statistics.
// PRE: none
// POST: Every grade and status appears in the breakdowns, with zero counts if absent
func QueryMemberStats(members []member.Member) MemberStats {
	byStatus := Breakdown(members, func(m member.Member) string { return m.Status }, member.Statuses)
	return MemberStats{
		Total:         len(members),
		ByGrade:       Breakdown(members, func(m member.Member) string { return m.Grade }, member.Grades),
		ByStatus:      byStatus,
		ActivePercent: Find(byStatus, member.StatusActive).Percent,
	}
}

// DocumentStats summarizes the held page of documents.
type DocumentStats struct {
	Total      int
	ByCategory []Share
	ByGrade    []Share
}

// QueryDocumentStats computes document statistics.
func QueryDocumentStats(docs []document.Document) DocumentStats {
	return DocumentStats{
		Total:      len(docs),
		ByCategory: Breakdown(docs, func(d document.Document) string { return d.Category }, document.Categories),
		ByGrade:    Breakdown(docs, func(d document.Document) string { return d.Grade }, member.Grades),
	}
}

// ProgramStats summarizes the held page of programs.
type ProgramStats struct {
	Total    int
	ByType   []Share
	ByStatus []Share
}

// QueryProgramStats computes program statistics.
func QueryProgramStats(programs []program.Program) ProgramStats {
	return ProgramStats{
		Total:    len(programs),
		ByType:   Breakdown(programs, func(p program.Program) string { return p.Type }, program.ValidTypes),
		ByStatus: Breakdown(programs, func(p program.Program) string { return p.Status }, program.ValidStatuses),
	}
}

// GradeAttendance is the attendance of one grade.
type GradeAttendance struct {
	Grade          string
	Total          int
	Present        int
	PresentPercent float64
}

// AttendanceStats summarizes one program's roster.
type AttendanceStats struct {
	Total          int
	ByStatus       []Share
	PresentPercent float64
	ByGrade        []GradeAttendance
}

// Count returns the number of roster entries in status s.
func (a AttendanceStats) Count(s attendance.Status) int {
	return Find(a.ByStatus, string(s)).Count
}

// QueryAttendanceStats computes attendance statistics for a roster.
// PRE: none
// POST: PresentPercent = present / total, rounded to one decimal; 0 for an empty roster
// INVARIANT: ByGrade lists known grades first, then any other grade alphabetically
func QueryAttendanceStats(roster []attendance.Record) AttendanceStats {
	statusOrder := make([]string, len(attendance.Statuses))
	for i, s := range attendance.Statuses {
		statusOrder[i] = string(s)
	}
	byStatus := Breakdown(roster, func(r attendance.Record) string { return string(r.Status) }, statusOrder)

	gradeTotals := Breakdown(roster, func(r attendance.Record) string { return r.Grade }, member.Grades)
	present := make(map[string]int)
	for _, r := range roster {
		if r.Status == attendance.StatusPresent {
			present[r.Grade]++
		}
	}
	byGrade := make([]GradeAttendance, 0, len(gradeTotals))
	for _, g := range gradeTotals {
		if g.Count == 0 {
			continue
		}
		byGrade = append(byGrade, GradeAttendance{
			Grade:          g.Key,
			Total:          g.Count,
			Present:        present[g.Key],
			PresentPercent: Percent(present[g.Key], g.Count),
		})
	}

	return AttendanceStats{
		Total:          len(roster),
		ByStatus:       byStatus,
		PresentPercent: Find(byStatus, string(attendance.StatusPresent)).Percent,
		ByGrade:        byGrade,
	}
}
