package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/identity"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

// WebhookService mirrors identity-provider user lifecycle events into the
// local store. The handler has already verified the payload signature by the
// time an event reaches this service.
type WebhookService interface {
	HandleEvent(ctx context.Context, event *identity.WebhookEvent) error
}

type webhookService struct {
	userRepo       repositories.UserRepository
	invitationRepo repositories.InvitationRepository
	orgRepo        repositories.OrganisationRepository
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

// NewWebhookService creates a webhook service.
func NewWebhookService(
	userRepo repositories.UserRepository,
	invitationRepo repositories.InvitationRepository,
	orgRepo repositories.OrganisationRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) WebhookService {
	return &webhookService{
		userRepo:       userRepo,
		invitationRepo: invitationRepo,
		orgRepo:        orgRepo,
		metrics:        m,
		logger:         logger.Named("webhooks"),
	}
}

var _ WebhookService = (*webhookService)(nil)

func (s *webhookService) HandleEvent(ctx context.Context, event *identity.WebhookEvent) error {
	s.metrics.WebhookEvents.WithLabelValues(event.Type).Inc()

	switch event.Type {
	case identity.EventUserCreated, identity.EventUserUpdated:
		return s.mirrorUser(ctx, event)
	case identity.EventUserDeleted:
		return s.deleteUser(ctx, event)
	default:
		// Unknown event types are acknowledged and ignored; the provider
		// adds types without notice.
		s.logger.Debug("Ignoring webhook event", zap.String("type", event.Type))
		return nil
	}
}

func (s *webhookService) mirrorUser(ctx context.Context, event *identity.WebhookEvent) error {
	var user identity.WebhookUser
	if err := json.Unmarshal(event.Data, &user); err != nil {
		return fmt.Errorf("failed to decode user payload: %w", err)
	}
	if user.ID == "" {
		return fmt.Errorf("user payload has no id")
	}

	orgID, err := uuid.Parse(user.PublicMetadata["org_id"])
	if err != nil {
		// Users without an org claim (e.g. created directly in the provider
		// dashboard) are not portal users; skip rather than fail.
		s.logger.Warn("Webhook user has no valid org_id, skipping",
			zap.String("external_id", user.ID),
			zap.String("type", event.Type))
		return nil
	}

	if _, err := s.orgRepo.GetByID(ctx, orgID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("Webhook user references unknown organisation, skipping",
				zap.String("external_id", user.ID),
				zap.String("org_id", orgID.String()))
			return nil
		}
		return err
	}

	role := user.PublicMetadata["role"]
	if !models.IsValidRole(role) {
		role = models.RoleOrgMember
	}

	if err := s.userRepo.Upsert(ctx, &models.PortalUser{
		ExternalID: user.ID,
		OrgID:      orgID,
		Email:      user.Email,
		Name:       user.FullName(),
		Role:       role,
	}); err != nil {
		return err
	}

	// First sign-in after accepting an invitation: settle the local record.
	if event.Type == identity.EventUserCreated {
		if err := s.markInvitationAccepted(ctx, orgID, user.Email); err != nil {
			s.logger.Warn("Failed to mark invitation accepted",
				zap.String("external_id", user.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Mirrored webhook user",
		zap.String("external_id", user.ID),
		zap.String("org_id", orgID.String()),
		zap.String("type", event.Type))
	return nil
}

func (s *webhookService) markInvitationAccepted(ctx context.Context, orgID uuid.UUID, email string) error {
	invitation, err := s.invitationRepo.GetByEmail(ctx, orgID, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if invitation.Status != models.InvitationPending {
		return nil
	}
	return s.invitationRepo.UpdateStatusByExternalID(ctx, invitation.ExternalID, models.InvitationAccepted)
}

func (s *webhookService) deleteUser(ctx context.Context, event *identity.WebhookEvent) error {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("failed to decode deletion payload: %w", err)
	}
	if payload.ID == "" {
		return fmt.Errorf("deletion payload has no id")
	}

	if err := s.userRepo.DeleteByExternalID(ctx, payload.ID); err != nil {
		return err
	}

	s.logger.Info("Removed webhook-deleted user", zap.String("external_id", payload.ID))
	return nil
}
