package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is a top-level workflow grouping (the "ai mba" CSV column).
// Identity is case-insensitive name equality.
type Category struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Department is a workflow grouping under a Category (the "category" CSV column).
type Department struct {
	ID         uuid.UUID `json:"id"`
	CategoryID uuid.UUID `json:"category_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// BookCategory groups books under one of the fixed book departments.
type BookCategory struct {
	ID         uuid.UUID `json:"id"`
	Department string    `json:"department"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Book is a source text that book workflows are derived from.
type Book struct {
	ID         uuid.UUID `json:"id"`
	CategoryID uuid.UUID `json:"category_id"`
	Name       string    `json:"name"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"created_at"`
}

// BookDepartments is the fixed set of departments the book-workflow import
// accepts. Rows naming any other department are rejected outright.
var BookDepartments = []string{
	"Strategy",
	"Marketing",
	"Sales",
	"Finance",
	"Operations",
	"Leadership",
	"Innovation",
	"Technology",
}

// IsBookDepartment checks membership in BookDepartments (case-insensitive).
func IsBookDepartment(name string) bool {
	for _, d := range BookDepartments {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

// CanonicalBookDepartment returns the canonical casing for a department name,
// or the input unchanged if it is not a known department.
func CanonicalBookDepartment(name string) string {
	for _, d := range BookDepartments {
		if strings.EqualFold(d, name) {
			return d
		}
	}
	return name
}
