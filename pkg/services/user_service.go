package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/identity"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

// RoleMismatch is one user whose provider-side role metadata disagrees with
// the local mirror. Reconciliation reports these; it never heals them.
type RoleMismatch struct {
	UserID       uuid.UUID `json:"user_id"`
	ExternalID   string    `json:"external_id"`
	Email        string    `json:"email"`
	LocalRole    string    `json:"local_role"`
	ProviderRole string    `json:"provider_role"`
}

// UserService manages the local user mirror and the dual-written role.
type UserService interface {
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.PortalUser, error)
	// UpdateRole writes the database first, then the provider's metadata
	// copy. A provider failure is surfaced but the database write is NOT
	// reverted; reconciliation reports the drift.
	UpdateRole(ctx context.Context, orgID, userID uuid.UUID, newRole string) error
	Remove(ctx context.Context, orgID, userID uuid.UUID) error
	// ReconcileRoles compares every mirrored user's local role against the
	// provider's metadata and returns the mismatches.
	ReconcileRoles(ctx context.Context) ([]RoleMismatch, error)
}

type userService struct {
	userRepo repositories.UserRepository
	orgRepo  repositories.OrganisationRepository
	provider identity.Client
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewUserService creates a user service.
func NewUserService(
	userRepo repositories.UserRepository,
	orgRepo repositories.OrganisationRepository,
	provider identity.Client,
	m *metrics.Metrics,
	logger *zap.Logger,
) UserService {
	return &userService{
		userRepo: userRepo,
		orgRepo:  orgRepo,
		provider: provider,
		metrics:  m,
		logger:   logger.Named("users"),
	}
}

var _ UserService = (*userService)(nil)

func (s *userService) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.PortalUser, error) {
	return s.userRepo.ListByOrg(ctx, orgID)
}

func (s *userService) UpdateRole(ctx context.Context, orgID, userID uuid.UUID, newRole string) error {
	if !models.IsImportableRole(newRole) {
		return fmt.Errorf("%w: role must be one of: %s",
			apperrors.ErrInvalidRole, models.AllowedList(models.ImportableRoles))
	}

	user, err := s.userRepo.GetByID(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if user.Role == models.RolePlatformAdmin {
		return fmt.Errorf("%w: platform administrators cannot be managed through organisation endpoints",
			apperrors.ErrForbidden)
	}

	if err := s.userRepo.UpdateRoleWithAdminCheck(ctx, orgID, userID, newRole); err != nil {
		return err
	}

	// Dual-write: the provider's metadata copy is updated second. On
	// failure the local role stands and the drift shows up in
	// ReconcileRoles until a retry lands.
	if err := s.provider.UpdateUserRole(ctx, user.ExternalID, newRole); err != nil {
		s.logger.Warn("Provider role update failed after local write",
			zap.String("user_id", userID.String()),
			zap.String("role", newRole),
			zap.Error(err))
		return fmt.Errorf("%w: role updated locally but provider sync failed", apperrors.ErrProviderUnavailable)
	}

	s.logger.Info("User role updated",
		zap.String("user_id", userID.String()),
		zap.String("role", newRole))
	return nil
}

func (s *userService) Remove(ctx context.Context, orgID, userID uuid.UUID) error {
	user, err := s.userRepo.GetByID(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if user.Role == models.RolePlatformAdmin {
		return fmt.Errorf("%w: platform administrators cannot be managed through organisation endpoints",
			apperrors.ErrForbidden)
	}
	return s.userRepo.Remove(ctx, orgID, userID)
}

func (s *userService) ReconcileRoles(ctx context.Context) ([]RoleMismatch, error) {
	orgs, err := s.orgRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	mismatches := []RoleMismatch{}
	for _, org := range orgs {
		users, err := s.userRepo.ListByOrg(ctx, org.ID)
		if err != nil {
			return nil, err
		}

		for _, user := range users {
			providerRole, err := s.provider.GetUserRole(ctx, user.ExternalID)
			if err != nil {
				// One unreachable user should not abort the sweep.
				s.logger.Warn("Failed to read provider role",
					zap.String("user_id", user.ID.String()),
					zap.Error(err))
				continue
			}
			if providerRole != user.Role {
				mismatches = append(mismatches, RoleMismatch{
					UserID:       user.ID,
					ExternalID:   user.ExternalID,
					Email:        user.Email,
					LocalRole:    user.Role,
					ProviderRole: providerRole,
				})
			}
		}
	}

	if len(mismatches) > 0 {
		s.logger.Warn("Role reconciliation found drift",
			zap.Int("mismatches", len(mismatches)))
	}
	return mismatches, nil
}
