package identity

import "encoding/json"

// Webhook event types the portal consumes.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// WebhookEvent is the envelope for provider webhook payloads.
type WebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WebhookUser is the user payload carried by user.* events.
type WebhookUser struct {
	ID             string            `json:"id"`
	Email          string            `json:"email_address"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	PublicMetadata map[string]string `json:"public_metadata"`
}

// FullName joins first and last name, tolerating either being empty.
func (u *WebhookUser) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
