package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportKind identifies which import pipeline produced a log entry.
const (
	ImportKindWorkflows     = "workflows"
	ImportKindUsers         = "users"
	ImportKindBookWorkflows = "book_workflows"
)

// ImportLog is the append-only audit record for one commit attempt.
// It is written even when the commit fails outright.
type ImportLog struct {
	ID              uuid.UUID  `json:"id"`
	OrgID           *uuid.UUID `json:"org_id,omitempty"` // nil for platform-level imports
	Kind            string     `json:"kind"`
	FileName        string     `json:"file_name"`
	TotalRows       int        `json:"total_rows"`
	SuccessCount    int        `json:"success_count"`
	FailureCount    int        `json:"failure_count"`
	EntitiesCreated CountMap   `json:"entities_created"`
	ImportedBy      string     `json:"imported_by"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     time.Time  `json:"completed_at"`
	ErrorSummary    string     `json:"error_summary,omitempty"`
}

// CountMap is a string→int map stored as JSONB.
type CountMap map[string]int

// Value implements driver.Valuer for database serialization.
func (m CountMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database deserialization.
func (m *CountMap) Scan(value interface{}) error {
	if value == nil {
		*m = CountMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for CountMap: %T", value)
	}
	return json.Unmarshal(data, m)
}
