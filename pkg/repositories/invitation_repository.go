package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/database"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

// InvitationRepository defines data access for local invitation records.
// Each record mirrors a provider-side invitation; the pair is created and
// revoked together by the user import service.
type InvitationRepository interface {
	Create(ctx context.Context, invitation *models.Invitation) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Invitation, error)
	GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.Invitation, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error)
	// ListPendingByOrg returns invitations still awaiting acceptance,
	// flipping any past their expiry to expired on the way out.
	ListPendingByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error)
	UpdateStatusByExternalID(ctx context.Context, externalID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByEmailOrg(ctx context.Context, orgID uuid.UUID, email string) error
}

type invitationRepository struct{}

// NewInvitationRepository creates a new invitation repository.
func NewInvitationRepository() InvitationRepository {
	return &invitationRepository{}
}

const invitationColumns = `id, org_id, email, name, role, course_ids, external_id, status, expires_at, created_at, updated_at`

func (r *invitationRepository) Create(ctx context.Context, invitation *models.Invitation) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	if invitation.ID == uuid.Nil {
		invitation.ID = uuid.New()
	}
	invitation.CreatedAt = now
	invitation.UpdatedAt = now
	if invitation.Status == "" {
		invitation.Status = models.InvitationPending
	}

	query := `
		INSERT INTO invitations (` + invitationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := scope.Conn.Exec(ctx, query,
		invitation.ID, invitation.OrgID, invitation.Email, invitation.Name,
		invitation.Role, invitation.CourseIDs, invitation.ExternalID,
		invitation.Status, invitation.ExpiresAt, invitation.CreatedAt, invitation.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

func (r *invitationRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Invitation, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE org_id = $1 AND id = $2`

	var inv models.Invitation
	err := scope.Conn.QueryRow(ctx, query, orgID, id).Scan(
		&inv.ID, &inv.OrgID, &inv.Email, &inv.Name, &inv.Role, &inv.CourseIDs,
		&inv.ExternalID, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return &inv, nil
}

func (r *invitationRepository) GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.Invitation, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE org_id = $1 AND LOWER(email) = LOWER($2)`

	var inv models.Invitation
	err := scope.Conn.QueryRow(ctx, query, orgID, email).Scan(
		&inv.ID, &inv.OrgID, &inv.Email, &inv.Name, &inv.Role, &inv.CourseIDs,
		&inv.ExternalID, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return &inv, nil
}

func (r *invitationRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	return r.list(ctx, orgID, "")
}

func (r *invitationRepository) ListPendingByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	// Lazily expire before reading so callers never see a stale pending row.
	_, err := scope.Conn.Exec(ctx, `
		UPDATE invitations
		SET status = $1, updated_at = NOW()
		WHERE org_id = $2 AND status = $3 AND expires_at < NOW()`,
		models.InvitationExpired, orgID, models.InvitationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to expire invitations: %w", err)
	}

	return r.list(ctx, orgID, models.InvitationPending)
}

func (r *invitationRepository) list(ctx context.Context, orgID uuid.UUID, status string) ([]*models.Invitation, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE org_id = $1`
	args := []any{orgID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*models.Invitation
	for rows.Next() {
		var inv models.Invitation
		if err := rows.Scan(
			&inv.ID, &inv.OrgID, &inv.Email, &inv.Name, &inv.Role, &inv.CourseIDs,
			&inv.ExternalID, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, &inv)
	}

	return invitations, rows.Err()
}

func (r *invitationRepository) UpdateStatusByExternalID(ctx context.Context, externalID, status string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE invitations SET status = $1, updated_at = NOW() WHERE external_id = $2`,
		status, externalID)
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *invitationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	return nil
}

func (r *invitationRepository) DeleteByEmailOrg(ctx context.Context, orgID uuid.UUID, email string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx,
		`DELETE FROM invitations WHERE org_id = $1 AND LOWER(email) = LOWER($2)`,
		orgID, email)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	return nil
}
