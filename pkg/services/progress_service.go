package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

// ProgressService tracks a member's position in a course. Completion is
// clamped to the course's lesson count; percent is always derived, never
// stored.
type ProgressService interface {
	Update(ctx context.Context, orgID, userID, courseID uuid.UUID, lessonsCompleted int) (*models.CourseProgress, error)
	Get(ctx context.Context, orgID, userID, courseID uuid.UUID) (*models.CourseProgress, error)
}

type progressService struct {
	progressRepo repositories.ProgressRepository
	courseRepo   repositories.CourseRepository
}

// NewProgressService creates a progress service.
func NewProgressService(progressRepo repositories.ProgressRepository, courseRepo repositories.CourseRepository) ProgressService {
	return &progressService{
		progressRepo: progressRepo,
		courseRepo:   courseRepo,
	}
}

var _ ProgressService = (*progressService)(nil)

func (s *progressService) Update(ctx context.Context, orgID, userID, courseID uuid.UUID, lessonsCompleted int) (*models.CourseProgress, error) {
	if lessonsCompleted < 0 {
		return nil, fmt.Errorf("%w: lessons_completed must be non-negative", apperrors.ErrImportInvalid)
	}

	course, err := s.courseRepo.GetByID(ctx, orgID, courseID)
	if err != nil {
		return nil, err
	}
	if !course.Published {
		return nil, apperrors.ErrNotFound
	}
	if lessonsCompleted > course.LessonsTotal {
		lessonsCompleted = course.LessonsTotal
	}

	progress := &models.CourseProgress{
		OrgID:            orgID,
		UserID:           userID,
		CourseID:         courseID,
		LessonsCompleted: lessonsCompleted,
		LessonsTotal:     course.LessonsTotal,
	}
	if err := s.progressRepo.Upsert(ctx, progress); err != nil {
		return nil, err
	}

	return progress, nil
}

func (s *progressService) Get(ctx context.Context, orgID, userID, courseID uuid.UUID) (*models.CourseProgress, error) {
	entries, err := s.progressRepo.ListByUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range entries {
		if p.CourseID == courseID {
			return p, nil
		}
	}
	return nil, apperrors.ErrNotFound
}
