package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation mirrors a pending onboarding record in the identity provider.
// ExternalID is the provider-side invitation ID; the two records are created
// and revoked as a pair.
type Invitation struct {
	ID         uuid.UUID   `json:"id"`
	OrgID      uuid.UUID   `json:"org_id"`
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	Role       string      `json:"role"`
	CourseIDs  []uuid.UUID `json:"course_ids"`
	ExternalID string      `json:"external_id"`
	Status     string      `json:"status"`
	ExpiresAt  time.Time   `json:"expires_at"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Invitation status values.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationExpired  = "expired"
	InvitationFailed   = "failed"
	InvitationRevoked  = "revoked"
)
