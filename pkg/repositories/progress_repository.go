package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mentora-hq/portal-engine/pkg/database"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

// ProgressRepository defines data access for per-user course progress.
type ProgressRepository interface {
	Upsert(ctx context.Context, progress *models.CourseProgress) error
	ListByUser(ctx context.Context, orgID, userID uuid.UUID) ([]*models.CourseProgress, error)
}

type progressRepository struct{}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository() ProgressRepository {
	return &progressRepository{}
}

func (r *progressRepository) Upsert(ctx context.Context, progress *models.CourseProgress) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if progress.LastViewedAt.IsZero() {
		progress.LastViewedAt = time.Now()
	}

	query := `
		INSERT INTO course_progress (org_id, user_id, course_id, lessons_completed, lessons_total, last_viewed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (org_id, user_id, course_id) DO UPDATE
		SET lessons_completed = GREATEST(course_progress.lessons_completed, EXCLUDED.lessons_completed),
		    lessons_total = EXCLUDED.lessons_total,
		    last_viewed_at = EXCLUDED.last_viewed_at`

	_, err := scope.Conn.Exec(ctx, query,
		progress.OrgID, progress.UserID, progress.CourseID,
		progress.LessonsCompleted, progress.LessonsTotal, progress.LastViewedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}

	return nil
}

func (r *progressRepository) ListByUser(ctx context.Context, orgID, userID uuid.UUID) ([]*models.CourseProgress, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT org_id, user_id, course_id, lessons_completed, lessons_total, last_viewed_at
		FROM course_progress
		WHERE org_id = $1 AND user_id = $2
		ORDER BY last_viewed_at DESC`

	rows, err := scope.Conn.Query(ctx, query, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var entries []*models.CourseProgress
	for rows.Next() {
		var p models.CourseProgress
		if err := rows.Scan(&p.OrgID, &p.UserID, &p.CourseID,
			&p.LessonsCompleted, &p.LessonsTotal, &p.LastViewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		entries = append(entries, &p)
	}

	return entries, rows.Err()
}
