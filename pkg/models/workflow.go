package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workflow is a piece of learning content filed under a category/department.
// Imported from the workflow CSV ("topic" column becomes Name, "workflow"
// becomes Description).
type Workflow struct {
	ID           uuid.UUID `json:"id"`
	CategoryID   uuid.UUID `json:"category_id"`
	DepartmentID uuid.UUID `json:"department_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CourseName   string    `json:"course_name"`
	Author       string    `json:"author"`
	Link         string    `json:"link"`
	CreatedAt    time.Time `json:"created_at"`
}

// BookWorkflow is a workflow derived from a book, tagged with an activity
// type and a problem goal.
type BookWorkflow struct {
	ID           uuid.UUID `json:"id"`
	BookID       uuid.UUID `json:"book_id"`
	Name         string    `json:"name"`
	ActivityType string    `json:"activity_type"`
	ProblemGoal  string    `json:"problem_goal"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityTypes is the closed set of book-workflow activity types.
var ActivityTypes = []string{"Create", "Assess", "Plan", "Workshop"}

// ProblemGoals is the closed set of book-workflow problem goals.
var ProblemGoals = []string{"Grow", "Optimise", "Lead", "Strategise", "Innovate", "Understand"}

// IsValidActivityType checks membership in ActivityTypes (exact case).
func IsValidActivityType(v string) bool {
	for _, t := range ActivityTypes {
		if t == v {
			return true
		}
	}
	return false
}

// IsValidProblemGoal checks membership in ProblemGoals (exact case).
func IsValidProblemGoal(v string) bool {
	for _, g := range ProblemGoals {
		if g == v {
			return true
		}
	}
	return false
}

// AllowedList renders an enum set for validation messages.
func AllowedList(values []string) string {
	return strings.Join(values, ", ")
}
