package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// OrganisationService manages tenants. All operations require the platform
// admin scope except slug availability, which the signup flow also uses.
type OrganisationService interface {
	Create(ctx context.Context, name, slug string) (*models.Organisation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Organisation, error)
	List(ctx context.Context) ([]*models.Organisation, error)
	SlugAvailable(ctx context.Context, slug string) (bool, error)
}

type organisationService struct {
	orgRepo repositories.OrganisationRepository
	logger  *zap.Logger
}

// NewOrganisationService creates an organisation service.
func NewOrganisationService(orgRepo repositories.OrganisationRepository, logger *zap.Logger) OrganisationService {
	return &organisationService{
		orgRepo: orgRepo,
		logger:  logger.Named("organisations"),
	}
}

var _ OrganisationService = (*organisationService)(nil)

func (s *organisationService) Create(ctx context.Context, name, slug string) (*models.Organisation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organisation name is required", apperrors.ErrImportInvalid)
	}

	if slug == "" {
		slug = slugify(name)
	}
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must be lowercase letters, digits and hyphens", apperrors.ErrImportInvalid)
	}

	org := &models.Organisation{Name: name, Slug: slug}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}

	s.logger.Info("Organisation created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug))
	return org, nil
}

func (s *organisationService) Get(ctx context.Context, id uuid.UUID) (*models.Organisation, error) {
	return s.orgRepo.GetByID(ctx, id)
}

func (s *organisationService) List(ctx context.Context) ([]*models.Organisation, error) {
	return s.orgRepo.List(ctx)
}

func (s *organisationService) SlugAvailable(ctx context.Context, slug string) (bool, error) {
	return s.orgRepo.SlugAvailable(ctx, slug)
}

// slugify derives a URL-safe slug from a display name.
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
