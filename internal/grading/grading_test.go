package grading

import (
	"testing"

	"github.com/school-admin/backend/internal/models"
)

func standardSystem() *models.GradeSystem {
	return &models.GradeSystem{
		Name: "Standard",
		Boundaries: []models.GradeBoundary{
			{Grade: "A", MinPercentage: 80, MaxPercentage: 100},
			{Grade: "B", MinPercentage: 70, MaxPercentage: 79.99},
			{Grade: "C", MinPercentage: 60, MaxPercentage: 69.99},
			{Grade: "D", MinPercentage: 50, MaxPercentage: 59.99},
			{Grade: "E", MinPercentage: 40, MaxPercentage: 49.99},
			{Grade: "F", MinPercentage: 0, MaxPercentage: 39.99},
		},
	}
}

func TestResolveGrade(t *testing.T) {
	gs := standardSystem()

	tests := []struct {
		name       string
		percentage float64
		expected   string
	}{
		{"Perfect Score", 100, "A"},
		{"Grade A Lower Bound", 80, "A"},
		{"Grade B Upper Bound", 79.99, "B"},
		{"Grade B", 72.5, "B"},
		{"Grade C", 65, "C"},
		{"Grade D", 50, "D"},
		{"Grade E", 40, "E"},
		{"Grade F", 12, "F"},
		{"Zero Score", 0, "F"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveGrade(tt.percentage, gs)
			if got != tt.expected {
				t.Errorf("Expected grade %s for %.2f%%, got %s", tt.expected, tt.percentage, got)
			}
		})
	}
}

func TestResolveGradeGaps(t *testing.T) {
	// Boundaries that leave 70-79.99 uncovered; scores in the gap fall
	// back to F rather than erroring.
	gs := &models.GradeSystem{
		Boundaries: []models.GradeBoundary{
			{Grade: "A", MinPercentage: 80, MaxPercentage: 100},
			{Grade: "C", MinPercentage: 0, MaxPercentage: 69.99},
		},
	}

	tests := []struct {
		name       string
		percentage float64
		expected   string
	}{
		{"Above Gap", 85, "A"},
		{"Inside Gap", 75, FallbackGrade},
		{"Below Gap", 50, "C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveGrade(tt.percentage, gs)
			if got != tt.expected {
				t.Errorf("Expected grade %s for %.2f%%, got %s", tt.expected, tt.percentage, got)
			}
		})
	}
}

func TestResolveGradeFirstMatchWins(t *testing.T) {
	// Overlapping boundaries: stored order decides, not band width.
	gs := &models.GradeSystem{
		Boundaries: []models.GradeBoundary{
			{Grade: "B", MinPercentage: 70, MaxPercentage: 100},
			{Grade: "A", MinPercentage: 90, MaxPercentage: 100},
		},
	}

	if got := ResolveGrade(95, gs); got != "B" {
		t.Errorf("Expected first matching boundary B, got %s", got)
	}
}

func TestResolveGradeEmptySystem(t *testing.T) {
	gs := &models.GradeSystem{}
	if got := ResolveGrade(50, gs); got != FallbackGrade {
		t.Errorf("Expected fallback grade %s, got %s", FallbackGrade, got)
	}
}

func TestResolveGradePoint(t *testing.T) {
	four := 4.0
	gs := &models.GradeSystem{
		Boundaries: []models.GradeBoundary{
			{Grade: "A", MinPercentage: 80, MaxPercentage: 100, GradePoint: &four},
			{Grade: "B", MinPercentage: 70, MaxPercentage: 79.99},
		},
	}

	if gp := ResolveGradePoint(90, gs); gp == nil || *gp != 4.0 {
		t.Errorf("Expected grade point 4.0, got %v", gp)
	}
	if gp := ResolveGradePoint(75, gs); gp != nil {
		t.Errorf("Expected nil grade point for boundary without one, got %v", gp)
	}
	if gp := ResolveGradePoint(10, gs); gp != nil {
		t.Errorf("Expected nil grade point for unmatched percentage, got %v", gp)
	}
}
