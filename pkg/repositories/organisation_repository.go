// Package repositories contains PostgreSQL data access for portal-engine.
// All repositories read their connection from the tenant scope in context;
// org-scoped tables are additionally guarded by RLS policies.
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

// OrganisationRepository defines data access for organisations.
// Organisations are platform-level rows; callers must run under an admin scope.
type OrganisationRepository interface {
	Create(ctx context.Context, org *models.Organisation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organisation, error)
	List(ctx context.Context) ([]*models.Organisation, error)
	SlugAvailable(ctx context.Context, slug string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type organisationRepository struct{}

// NewOrganisationRepository creates a new organisation repository.
func NewOrganisationRepository() OrganisationRepository {
	return &organisationRepository{}
}

func (r *organisationRepository) Create(ctx context.Context, org *models.Organisation) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	org.CreatedAt = now
	org.UpdatedAt = now

	query := `
		INSERT INTO organisations (id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := scope.Conn.Exec(ctx, query, org.ID, org.Name, org.Slug, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create organisation: %w", err)
	}

	return nil
}

func (r *organisationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organisation, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, name, slug, created_at, updated_at
		FROM organisations
		WHERE id = $1`

	var org models.Organisation
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.Slug, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organisation: %w", err)
	}

	return &org, nil
}

func (r *organisationRepository) List(ctx context.Context) ([]*models.Organisation, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, name, slug, created_at, updated_at
		FROM organisations
		ORDER BY name`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organisations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organisation
	for rows.Next() {
		var org models.Organisation
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organisation: %w", err)
		}
		orgs = append(orgs, &org)
	}

	return orgs, rows.Err()
}

func (r *organisationRepository) SlugAvailable(ctx context.Context, slug string) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM organisations WHERE slug = LOWER($1))`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}

	return !exists, nil
}

func (r *organisationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM organisations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organisation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}
