package models

import (
	"time"

	"github.com/google/uuid"
)

// PortalUser is the local mirror of an identity-provider user.
// ExternalID is the provider's user ID; lifecycle changes arrive via webhook.
type PortalUser struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	OrgID      uuid.UUID `json:"org_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Role constants.
const (
	RolePlatformAdmin = "platform_admin"
	RoleOrgAdmin      = "org_admin"
	RoleOrgMember     = "org_member"
)

// ValidRoles contains all roles a portal user can hold.
var ValidRoles = []string{RolePlatformAdmin, RoleOrgAdmin, RoleOrgMember}

// ImportableRoles are the roles a user-import CSV may assign.
// platform_admin is deliberately excluded from bulk import.
var ImportableRoles = []string{RoleOrgAdmin, RoleOrgMember}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsImportableRole checks if the given role may be assigned via CSV import.
func IsImportableRole(role string) bool {
	for _, r := range ImportableRoles {
		if r == role {
			return true
		}
	}
	return false
}
