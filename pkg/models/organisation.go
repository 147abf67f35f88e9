// Package models contains domain types for portal-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Organisation is the tenant boundary. Every org-scoped table carries its ID
// and is guarded by an RLS policy keyed on app.current_org_id.
type Organisation struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
