package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/database"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

// CourseRepository defines read access to courses. Courses are created
// through the authoring screens, not the import pipeline; imports only
// resolve course names against published courses.
type CourseRepository interface {
	GetByID(ctx context.Context, orgID, courseID uuid.UUID) (*models.Course, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Course, error)
	ListPublishedByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Course, error)
}

type courseRepository struct{}

// NewCourseRepository creates a new course repository.
func NewCourseRepository() CourseRepository {
	return &courseRepository{}
}

func (r *courseRepository) GetByID(ctx context.Context, orgID, courseID uuid.UUID) (*models.Course, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, org_id, name, slug, published, lessons_total, created_at, updated_at
		FROM courses
		WHERE org_id = $1 AND id = $2`

	var c models.Course
	err := scope.Conn.QueryRow(ctx, query, orgID, courseID).Scan(
		&c.ID, &c.OrgID, &c.Name, &c.Slug, &c.Published,
		&c.LessonsTotal, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	return &c, nil
}

func (r *courseRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Course, error) {
	return r.list(ctx, orgID, false)
}

func (r *courseRepository) ListPublishedByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Course, error) {
	return r.list(ctx, orgID, true)
}

func (r *courseRepository) list(ctx context.Context, orgID uuid.UUID, publishedOnly bool) ([]*models.Course, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, org_id, name, slug, published, lessons_total, created_at, updated_at
		FROM courses
		WHERE org_id = $1`
	if publishedOnly {
		query += ` AND published`
	}
	query += ` ORDER BY name`

	rows, err := scope.Conn.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var courses []*models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.Slug, &c.Published,
			&c.LessonsTotal, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, &c)
	}

	return courses, rows.Err()
}
