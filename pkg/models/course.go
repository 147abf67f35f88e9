package models

import (
	"time"

	"github.com/google/uuid"
)

// Course is an org-scoped unit of learning content. Only published courses
// can be referenced by a user-import row.
type Course struct {
	ID           uuid.UUID `json:"id"`
	OrgID        uuid.UUID `json:"org_id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Published    bool      `json:"published"`
	LessonsTotal int       `json:"lessons_total"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CourseProgress tracks one user's position in a course.
// Percent is derived, never stored.
type CourseProgress struct {
	OrgID            uuid.UUID `json:"org_id"`
	UserID           uuid.UUID `json:"user_id"`
	CourseID         uuid.UUID `json:"course_id"`
	LessonsCompleted int       `json:"lessons_completed"`
	LessonsTotal     int       `json:"lessons_total"`
	LastViewedAt     time.Time `json:"last_viewed_at"`
}

// Percent returns completion as 0-100. A course with no lessons reports 0.
func (p *CourseProgress) Percent() float64 {
	if p.LessonsTotal <= 0 {
		return 0
	}
	pct := float64(p.LessonsCompleted) / float64(p.LessonsTotal) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
