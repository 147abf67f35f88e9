// Package services contains the business logic for portal-engine: the
// preview-then-commit import pipeline, user and organisation management,
// invitation lifecycle, and course progress.
package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"

	"github.com/mentora-hq/portal-engine/pkg/models"
)

// ImportRow is one parsed upload record: a mapping from lower-cased column
// name to raw string value. RowNumber is the 1-based data row index (header
// excluded). Rows are read-only once parsed.
type ImportRow struct {
	RowNumber int               `json:"row_number"`
	Values    map[string]string `json:"values"`
}

// Get returns the trimmed value of a column, or "" when absent.
func (r ImportRow) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// ValidationError describes one field-level problem in one row. Validation
// errors are data, never error returns; a row with at least one is excluded
// from the valid set.
type ValidationError struct {
	RowNumber int    `json:"row_number"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	RawValue  string `json:"raw_value,omitempty"`
}

// ImportSummary aggregates what a commit would do: which reference entities
// already exist, which would be created, and per-field value distributions.
type ImportSummary struct {
	EntitiesFound     map[string][]string       `json:"entities_found"`
	EntitiesToCreate  map[string][]string       `json:"entities_to_create"`
	TargetRecordCount int                       `json:"target_record_count"`
	Distributions     map[string]map[string]int `json:"distributions"`
	Lines             []string                  `json:"lines"`
}

// ImportPreview is the dry-run result. It is never persisted; commit
// recomputes it from the uploaded file to avoid stale-preview races.
type ImportPreview struct {
	IsValid    bool              `json:"is_valid"`
	TotalRows  int               `json:"total_rows"`
	ValidRows  int               `json:"valid_rows"`
	Errors     []ValidationError `json:"errors"`
	Summary    ImportSummary     `json:"summary"`
	SampleRows []ImportRow       `json:"sample_rows"`
}

// FailedInvitation records one per-row provider failure during a user-import
// commit. Per-row failures never abort the batch.
type FailedInvitation struct {
	RowNumber int    `json:"row_number"`
	Email     string `json:"email"`
	Reason    string `json:"reason"`
}

// ImportResult is the outcome of one commit attempt. Partial success is the
// normal outcome for large files; counts, not rollback, surface it.
type ImportResult struct {
	ImportLogID       uuid.UUID          `json:"import_log_id"`
	TotalRows         int                `json:"total_rows"`
	SuccessCount      int                `json:"success_count"`
	FailureCount      int                `json:"failure_count"`
	EntitiesCreated   models.CountMap    `json:"entities_created"`
	FailedInvitations []FailedInvitation `json:"failed_invitations,omitempty"`
	ErrorSummary      string             `json:"error_summary,omitempty"`
}

// newSummary initialises an empty ImportSummary.
func newSummary() ImportSummary {
	return ImportSummary{
		EntitiesFound:    make(map[string][]string),
		EntitiesToCreate: make(map[string][]string),
		Distributions:    make(map[string]map[string]int),
	}
}

// addDistribution bumps one value's count in a named distribution.
func (s *ImportSummary) addDistribution(field, value string) {
	if s.Distributions[field] == nil {
		s.Distributions[field] = make(map[string]int)
	}
	s.Distributions[field][value]++
}

// buildLines renders human-readable summary lines, one per entity kind,
// pluralising kind labels ("1 category", "3 departments"). Kinds are sorted
// so identical input always yields identical lines.
func (s *ImportSummary) buildLines(targetKind string) {
	s.Lines = s.Lines[:0]
	s.Lines = append(s.Lines, countLine(s.TargetRecordCount, targetKind)+" to import")

	kinds := make([]string, 0, len(s.EntitiesToCreate))
	for kind := range s.EntitiesToCreate {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		if n := len(s.EntitiesToCreate[kind]); n > 0 {
			s.Lines = append(s.Lines, countLine(n, kind)+" to create")
		}
	}
}

func countLine(n int, kind string) string {
	label := kind
	if n != 1 {
		label = inflection.Plural(kind)
	}
	return fmt.Sprintf("%d %s", n, label)
}

// sampleOf returns the first n rows for preview display.
func sampleOf(rows []ImportRow, n int) []ImportRow {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}
