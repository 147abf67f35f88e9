package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountLine_Pluralises(t *testing.T) {
	assert.Equal(t, "1 workflow", countLine(1, "workflow"))
	assert.Equal(t, "3 workflows", countLine(3, "workflow"))
	assert.Equal(t, "0 categories", countLine(0, "category"))
	assert.Equal(t, "1 category", countLine(1, "category"))
}

func TestBuildLines_SortedAndSkipsEmptyKinds(t *testing.T) {
	s := newSummary()
	s.TargetRecordCount = 4
	s.EntitiesToCreate["department"] = []string{"Planning", "Research"}
	s.EntitiesToCreate["category"] = []string{"AI MBA"}
	s.EntitiesToCreate["book"] = nil

	s.buildLines("workflow")

	assert.Equal(t, []string{
		"4 workflows to import",
		"1 category to create",
		"2 departments to create",
	}, s.Lines)
}

func TestBuildLines_Idempotent(t *testing.T) {
	s := newSummary()
	s.TargetRecordCount = 1
	s.EntitiesToCreate["category"] = []string{"AI MBA"}

	s.buildLines("workflow")
	first := append([]string(nil), s.Lines...)
	s.buildLines("workflow")

	assert.Equal(t, first, s.Lines)
}

func TestSummarizeErrors_CapsAtTen(t *testing.T) {
	var errs []ValidationError
	for i := 1; i <= 13; i++ {
		errs = append(errs, ValidationError{
			RowNumber: i,
			Field:     "email",
			Message:   "email is required",
		})
	}

	summary := summarizeErrors(errs)

	assert.Contains(t, summary, "row 1 [email]: email is required")
	assert.Contains(t, summary, "row 10 [email]: email is required")
	assert.NotContains(t, summary, "row 11")
	assert.Contains(t, summary, "and 3 more")
}

func TestSummarizeErrors_OmitsEmptyField(t *testing.T) {
	summary := summarizeErrors([]ValidationError{{RowNumber: 2, Message: "something broke"}})
	assert.Equal(t, "row 2: something broke", summary)
}

func TestSummarizeFailedInvitations(t *testing.T) {
	assert.Equal(t, "", summarizeFailedInvitations(nil))

	got := summarizeFailedInvitations([]FailedInvitation{
		{RowNumber: 1, Email: "a@example.com", Reason: "rejected"},
		{RowNumber: 4, Email: "b@example.com", Reason: "duplicate"},
	})
	assert.Equal(t, "row 1 (a@example.com): rejected; row 4 (b@example.com): duplicate", got)
}

func TestSampleOf(t *testing.T) {
	rows := make([]ImportRow, 8)
	for i := range rows {
		rows[i].RowNumber = i + 1
	}

	sample := sampleOf(rows, 5)
	assert.Len(t, sample, 5)
	assert.Equal(t, 1, sample[0].RowNumber)

	assert.Len(t, sampleOf(rows[:3], 5), 3)
}

func TestAddDistribution(t *testing.T) {
	s := newSummary()
	s.addDistribution("role", "org_member")
	s.addDistribution("role", "org_member")
	s.addDistribution("role", "org_admin")

	assert.Equal(t, 2, s.Distributions["role"]["org_member"])
	assert.Equal(t, 1, s.Distributions["role"]["org_admin"])
}
