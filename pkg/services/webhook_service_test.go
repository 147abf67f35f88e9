package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/identity"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

type webhookFixture struct {
	svc            WebhookService
	userRepo       *mockUserRepository
	invitationRepo *mockInvitationRepository
	orgRepo        *mockOrganisationRepository
	org            *models.Organisation
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		userRepo:       &mockUserRepository{},
		invitationRepo: &mockInvitationRepository{},
		orgRepo:        &mockOrganisationRepository{},
		org:            &models.Organisation{ID: uuid.New(), Name: "Acme", Slug: "acme"},
	}
	f.orgRepo.orgs = []*models.Organisation{f.org}
	f.svc = NewWebhookService(f.userRepo, f.invitationRepo, f.orgRepo, metrics.New(), zap.NewNop())
	return f
}

func userEvent(t *testing.T, eventType string, user identity.WebhookUser) *identity.WebhookEvent {
	t.Helper()
	data, err := json.Marshal(user)
	require.NoError(t, err)
	return &identity.WebhookEvent{Type: eventType, Data: data}
}

func TestHandleEvent_UserCreated(t *testing.T) {
	f := newWebhookFixture()

	require.NoError(t, f.invitationRepo.Create(context.Background(), &models.Invitation{
		OrgID:      f.org.ID,
		Email:      "alice@example.com",
		ExternalID: "inv_alice",
		Status:     models.InvitationPending,
	}))

	err := f.svc.HandleEvent(context.Background(), userEvent(t, identity.EventUserCreated, identity.WebhookUser{
		ID:        "user_123",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Jones",
		PublicMetadata: map[string]string{
			"org_id": f.org.ID.String(),
			"role":   models.RoleOrgAdmin,
		},
	}))
	require.NoError(t, err)

	require.Len(t, f.userRepo.users, 1)
	mirrored := f.userRepo.users[0]
	assert.Equal(t, "user_123", mirrored.ExternalID)
	assert.Equal(t, f.org.ID, mirrored.OrgID)
	assert.Equal(t, "Alice Jones", mirrored.Name)
	assert.Equal(t, models.RoleOrgAdmin, mirrored.Role)

	assert.Equal(t, models.InvitationAccepted, f.invitationRepo.invitations[0].Status)
}

func TestHandleEvent_UserUpdatedDoesNotTouchInvitations(t *testing.T) {
	f := newWebhookFixture()

	require.NoError(t, f.invitationRepo.Create(context.Background(), &models.Invitation{
		OrgID:      f.org.ID,
		Email:      "alice@example.com",
		ExternalID: "inv_alice",
		Status:     models.InvitationPending,
	}))

	err := f.svc.HandleEvent(context.Background(), userEvent(t, identity.EventUserUpdated, identity.WebhookUser{
		ID:             "user_123",
		Email:          "alice@example.com",
		PublicMetadata: map[string]string{"org_id": f.org.ID.String()},
	}))
	require.NoError(t, err)

	assert.Equal(t, models.InvitationPending, f.invitationRepo.invitations[0].Status)
}

func TestHandleEvent_InvalidRoleDefaultsToMember(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), userEvent(t, identity.EventUserCreated, identity.WebhookUser{
		ID:    "user_123",
		Email: "alice@example.com",
		PublicMetadata: map[string]string{
			"org_id": f.org.ID.String(),
			"role":   "superuser",
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrgMember, f.userRepo.users[0].Role)
}

func TestHandleEvent_MissingOrgClaimSkipped(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), userEvent(t, identity.EventUserCreated, identity.WebhookUser{
		ID:    "user_123",
		Email: "alice@example.com",
	}))
	require.NoError(t, err)
	assert.Empty(t, f.userRepo.users)
}

func TestHandleEvent_UnknownOrgSkipped(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), userEvent(t, identity.EventUserCreated, identity.WebhookUser{
		ID:             "user_123",
		Email:          "alice@example.com",
		PublicMetadata: map[string]string{"org_id": uuid.NewString()},
	}))
	require.NoError(t, err)
	assert.Empty(t, f.userRepo.users)
}

func TestHandleEvent_UserCreatedWithoutID(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), userEvent(t, identity.EventUserCreated, identity.WebhookUser{
		Email: "alice@example.com",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestHandleEvent_UserDeleted(t *testing.T) {
	f := newWebhookFixture()
	f.userRepo.users = []*models.PortalUser{
		{ID: uuid.New(), ExternalID: "user_123", OrgID: f.org.ID, Email: "alice@example.com"},
	}

	err := f.svc.HandleEvent(context.Background(), &identity.WebhookEvent{
		Type: identity.EventUserDeleted,
		Data: json.RawMessage(`{"id":"user_123"}`),
	})
	require.NoError(t, err)
	assert.Empty(t, f.userRepo.users)
}

func TestHandleEvent_UnknownTypeIgnored(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), &identity.WebhookEvent{
		Type: "session.created",
		Data: json.RawMessage(`{}`),
	})
	assert.NoError(t, err)
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), &identity.WebhookEvent{
		Type: identity.EventUserCreated,
		Data: json.RawMessage(`{`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}
