package grading

import (
	"github.com/school-admin/backend/internal/models"
)

// FallbackGrade is returned when a percentage falls outside every boundary
// of a grade system. A system whose boundaries leave gaps in [0,100]
// silently grades scores in the gap as FallbackGrade; this is a deliberate
// policy carried over from the product, not an error.
const FallbackGrade = "F"

// ResolveGrade maps a percentage to a letter grade. Boundaries are scanned
// in stored order and the first one whose inclusive range contains the
// percentage wins; no sorting or clamping is applied. Pure and
// deterministic.
func ResolveGrade(percentage float64, gs *models.GradeSystem) string {
	for _, b := range gs.Boundaries {
		if percentage >= b.MinPercentage && percentage <= b.MaxPercentage {
			return b.Grade
		}
	}
	return FallbackGrade
}

// ResolveGradePoint returns the grade point of the first matching boundary,
// or nil when the boundary defines none or no boundary matches.
func ResolveGradePoint(percentage float64, gs *models.GradeSystem) *float64 {
	for _, b := range gs.Boundaries {
		if percentage >= b.MinPercentage && percentage <= b.MaxPercentage {
			return b.GradePoint
		}
	}
	return nil
}
