package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/identity"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

// InvitationService exposes the org-admin invitation screens: listing and
// manual revocation. Creation happens only through the user import.
type InvitationService interface {
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error)
	// ListPendingByOrg returns only actionable invitations, sweeping
	// past-due pending records to expired first.
	ListPendingByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error)
	// Revoke cancels the provider invitation and marks the local record
	// revoked, keeping the pair consistent.
	Revoke(ctx context.Context, orgID, invitationID uuid.UUID) error
}

type invitationService struct {
	invitationRepo repositories.InvitationRepository
	provider       identity.Client
	logger         *zap.Logger
}

// NewInvitationService creates an invitation service.
func NewInvitationService(
	invitationRepo repositories.InvitationRepository,
	provider identity.Client,
	logger *zap.Logger,
) InvitationService {
	return &invitationService{
		invitationRepo: invitationRepo,
		provider:       provider,
		logger:         logger.Named("invitations"),
	}
}

var _ InvitationService = (*invitationService)(nil)

func (s *invitationService) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	return s.invitationRepo.ListByOrg(ctx, orgID)
}

func (s *invitationService) ListPendingByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	return s.invitationRepo.ListPendingByOrg(ctx, orgID)
}

func (s *invitationService) Revoke(ctx context.Context, orgID, invitationID uuid.UUID) error {
	invitation, err := s.invitationRepo.GetByID(ctx, orgID, invitationID)
	if err != nil {
		return err
	}

	if err := s.provider.RevokeInvitation(ctx, invitation.ExternalID); err != nil {
		// The provider may have already expired or revoked it; only an
		// actual provider outage should block the local update.
		var provErr *identity.ProviderError
		if !errors.As(err, &provErr) || provErr.IsRetryable() {
			return err
		}
		s.logger.Debug("Provider revoke rejected, marking local record anyway",
			zap.String("invitation_id", invitationID.String()),
			zap.Int("status", provErr.StatusCode))
	}

	if err := s.invitationRepo.UpdateStatusByExternalID(ctx, invitation.ExternalID, models.InvitationRevoked); err != nil {
		return err
	}

	s.logger.Info("Invitation revoked",
		zap.String("invitation_id", invitationID.String()),
		zap.String("org_id", orgID.String()))
	return nil
}
