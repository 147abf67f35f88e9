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

// UserRepository defines data access for the local mirror of provider users.
type UserRepository interface {
	// Upsert inserts or updates a user keyed by external (provider) ID.
	// Used by the webhook consumer to mirror lifecycle events.
	Upsert(ctx context.Context, user *models.PortalUser) error
	GetByExternalID(ctx context.Context, externalID string) (*models.PortalUser, error)
	GetByID(ctx context.Context, orgID, userID uuid.UUID) (*models.PortalUser, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.PortalUser, error)
	// UpdateRoleWithAdminCheck atomically updates a user's role, returning
	// ErrLastAdmin when demoting the only org_admin of an organisation.
	UpdateRoleWithAdminCheck(ctx context.Context, orgID, userID uuid.UUID, newRole string) error
	DeleteByExternalID(ctx context.Context, externalID string) error
	Remove(ctx context.Context, orgID, userID uuid.UUID) error
}

type userRepository struct{}

// NewUserRepository creates a new user repository.
func NewUserRepository() UserRepository {
	return &userRepository{}
}

func (r *userRepository) Upsert(ctx context.Context, user *models.PortalUser) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO portal_users (id, external_id, org_id, email, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    role = EXCLUDED.role,
		    org_id = EXCLUDED.org_id,
		    updated_at = EXCLUDED.updated_at`

	_, err := scope.Conn.Exec(ctx, query,
		user.ID, user.ExternalID, user.OrgID, user.Email, user.Name, user.Role,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*models.PortalUser, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, external_id, org_id, email, name, role, created_at, updated_at
		FROM portal_users
		WHERE external_id = $1`

	var user models.PortalUser
	err := scope.Conn.QueryRow(ctx, query, externalID).Scan(
		&user.ID, &user.ExternalID, &user.OrgID, &user.Email, &user.Name,
		&user.Role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, orgID, userID uuid.UUID) (*models.PortalUser, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, external_id, org_id, email, name, role, created_at, updated_at
		FROM portal_users
		WHERE org_id = $1 AND id = $2`

	var user models.PortalUser
	err := scope.Conn.QueryRow(ctx, query, orgID, userID).Scan(
		&user.ID, &user.ExternalID, &user.OrgID, &user.Email, &user.Name,
		&user.Role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *userRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.PortalUser, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, external_id, org_id, email, name, role, created_at, updated_at
		FROM portal_users
		WHERE org_id = $1
		ORDER BY created_at`

	rows, err := scope.Conn.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.PortalUser
	for rows.Next() {
		var user models.PortalUser
		if err := rows.Scan(
			&user.ID, &user.ExternalID, &user.OrgID, &user.Email, &user.Name,
			&user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// UpdateRoleWithAdminCheck refuses to demote the last org_admin so an
// organisation can never lock itself out of its own admin screens.
func (r *userRepository) UpdateRoleWithAdminCheck(ctx context.Context, orgID, userID uuid.UUID, newRole string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE portal_users
		SET role = $1, updated_at = $2
		WHERE org_id = $3 AND id = $4
		  AND ($1 = 'org_admin' OR role <> 'org_admin' OR
		       (SELECT COUNT(*) FROM portal_users WHERE org_id = $3 AND role = 'org_admin') > 1)`

	result, err := scope.Conn.Exec(ctx, query, newRole, time.Now(), orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the user does not exist or they are the last admin.
		var exists bool
		if err := scope.Conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM portal_users WHERE org_id = $1 AND id = $2)`,
			orgID, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to update user role: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrLastAdmin
	}

	return nil
}

func (r *userRepository) DeleteByExternalID(ctx context.Context, externalID string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `DELETE FROM portal_users WHERE external_id = $1`, externalID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return nil
}

func (r *userRepository) Remove(ctx context.Context, orgID, userID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`DELETE FROM portal_users WHERE org_id = $1 AND id = $2`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}
