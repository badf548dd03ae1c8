// Package results turns raw per-subject marks into finalized student
// results: grouping, totals, grade resolution, and read-time ranking.
package results

import (
	"context"
	"sort"
	"time"

	"github.com/school-admin/backend/internal/grading"
	"github.com/school-admin/backend/internal/models"
)

// StudentLookup resolves student identity at publish time. A nil student
// with a nil error means the record is missing; the builder substitutes
// empty strings so one bad reference never aborts a batch.
type StudentLookup interface {
	LookupStudent(ctx context.Context, id string) (*models.Student, error)
}

// StudentGroup is one student's marks for an exam, in entry order.
type StudentGroup struct {
	StudentID string
	Marks     []models.Mark
}

// Totals holds the aggregated scores for one group.
type Totals struct {
	TotalMarks    float64
	MarksObtained float64
	Percentage    float64
}

// Aggregate groups mark entries by student, preserving first-seen student
// order and entry order within each group. Subject membership is not
// validated here; a stray mark for an unknown subject is summed as-is.
func Aggregate(marks []models.Mark) []StudentGroup {
	index := make(map[string]int)
	var groups []StudentGroup
	for _, m := range marks {
		i, ok := index[m.StudentID]
		if !ok {
			i = len(groups)
			index[m.StudentID] = i
			groups = append(groups, StudentGroup{StudentID: m.StudentID})
		}
		groups[i].Marks = append(groups[i].Marks, m)
	}
	return groups
}

// Totals sums the group. The second return is false when the summed max
// marks are zero; such students are skipped from the published set rather
// than producing an undefined percentage.
func (g StudentGroup) Totals() (Totals, bool) {
	var t Totals
	for _, m := range g.Marks {
		t.TotalMarks += m.MaxMarks
		t.MarksObtained += m.MarksObtained
	}
	if t.TotalMarks == 0 {
		return Totals{}, false
	}
	t.Percentage = t.MarksObtained / t.TotalMarks * 100
	return t, true
}

// Build constructs the finalized result for one student. Subject grades are
// resolved independently per subject; the overall grade is resolved once
// from the aggregated percentage. Missing subjects and missing students
// degrade to empty strings. The second return is false when the group has
// no gradeable marks.
func Build(ctx context.Context, exam *models.Exam, gs *models.GradeSystem, group StudentGroup, lookup StudentLookup) (*models.StudentResult, bool, error) {
	totals, ok := group.Totals()
	if !ok {
		return nil, false, nil
	}

	subjects := make([]models.SubjectResult, 0, len(group.Marks))
	for _, m := range group.Marks {
		name := ""
		if subject, found := exam.Subject(m.SubjectID); found {
			name = subject.Name
		}
		subjectPct := 0.0
		if m.MaxMarks > 0 {
			subjectPct = m.MarksObtained / m.MaxMarks * 100
		}
		subjects = append(subjects, models.SubjectResult{
			SubjectID:     m.SubjectID,
			SubjectName:   name,
			MarksObtained: m.MarksObtained,
			MaxMarks:      m.MaxMarks,
			Grade:         grading.ResolveGrade(subjectPct, gs),
		})
	}

	studentName, class, section := "", "", ""
	student, err := lookup.LookupStudent(ctx, group.StudentID)
	if err != nil {
		return nil, false, err
	}
	if student != nil {
		studentName = student.Name
		class = student.Class
		section = student.Section
	}

	return &models.StudentResult{
		ExamID:        exam.ID,
		StudentID:     group.StudentID,
		StudentName:   studentName,
		Class:         class,
		Section:       section,
		TotalMarks:    totals.TotalMarks,
		MarksObtained: totals.MarksObtained,
		Percentage:    totals.Percentage,
		Grade:         grading.ResolveGrade(totals.Percentage, gs),
		Subjects:      subjects,
		GeneratedAt:   time.Now().UTC(),
	}, true, nil
}

// Rank orders results by percentage descending and assigns 1-based
// sequential ranks. The sort is stable, so ties keep input order and
// receive distinct ranks. Ranks are computed on every read, never stored.
func Rank(rs []models.StudentResult) []models.StudentResult {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Percentage > rs[j].Percentage
	})
	for i := range rs {
		rs[i].Rank = i + 1
	}
	return rs
}
