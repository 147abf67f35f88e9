package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/blob"
	"github.com/mentora-hq/portal-engine/pkg/config"
	"github.com/mentora-hq/portal-engine/pkg/identity"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

// User CSV columns. "courses" is an optional comma-separated list of
// published course names within the row's organisation.
var userHeaders = []string{"email", "name", "role", "organisation", "courses"}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserImportInput carries one preview or commit request.
type UserImportInput struct {
	FileName string
	Data     []byte
	// OrgID pins the import to one organisation (org-admin variant). The
	// organisation column must then match that organisation's name.
	OrgID *uuid.UUID
	// AllowOrgCreate lets unknown organisation names be created at commit
	// time (platform-admin variant only).
	AllowOrgCreate bool
	ImportedBy     string
}

// UserImportService runs the preview-then-commit pipeline for the user CSV.
// Commit creates provider invitations in fan-out batches; per-row provider
// failures are isolated, only unexpected errors trigger compensation.
type UserImportService interface {
	Preview(ctx context.Context, in UserImportInput) (*ImportPreview, error)
	Commit(ctx context.Context, in UserImportInput) (*ImportResult, error)
}

type userImportService struct {
	orgRepo        repositories.OrganisationRepository
	courseRepo     repositories.CourseRepository
	invitationRepo repositories.InvitationRepository
	provider       identity.Client
	audit          *importAudit
	metrics        *metrics.Metrics
	cfg            *config.ImportsConfig
	invitationTTL  time.Duration
	logger         *zap.Logger
}

// NewUserImportService creates a user import service.
func NewUserImportService(
	orgRepo repositories.OrganisationRepository,
	courseRepo repositories.CourseRepository,
	invitationRepo repositories.InvitationRepository,
	importLogRepo repositories.ImportLogRepository,
	provider identity.Client,
	archive *blob.ArchiveStore,
	m *metrics.Metrics,
	cfg *config.ImportsConfig,
	invitationTTL time.Duration,
	logger *zap.Logger,
) UserImportService {
	logger = logger.Named("user_import")
	return &userImportService{
		orgRepo:        orgRepo,
		courseRepo:     courseRepo,
		invitationRepo: invitationRepo,
		provider:       provider,
		audit:          &importAudit{logRepo: importLogRepo, archive: archive, metrics: m, logger: logger},
		metrics:        m,
		cfg:            cfg,
		invitationTTL:  invitationTTL,
		logger:         logger,
	}
}

var _ UserImportService = (*userImportService)(nil)

// userReferences holds resolver state for one preview or commit: known
// organisations and, per existing organisation, its published courses.
type userReferences struct {
	orgs *referenceSet
	// courses maps lower(org name) -> lower(course name) -> course ID.
	courses map[string]map[string]uuid.UUID
}

func (s *userImportService) loadReferences(ctx context.Context, in UserImportInput) (*userReferences, error) {
	refs := &userReferences{
		orgs:    newReferenceSet(nil),
		courses: make(map[string]map[string]uuid.UUID),
	}

	var orgs []*models.Organisation
	if in.OrgID != nil {
		org, err := s.orgRepo.GetByID(ctx, *in.OrgID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reference data: %w", err)
		}
		orgs = []*models.Organisation{org}
	} else {
		var err error
		orgs, err = s.orgRepo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reference data: %w", err)
		}
	}

	for _, org := range orgs {
		refs.orgs.add(org.Name, org.ID)

		courses, err := s.courseRepo.ListPublishedByOrg(ctx, org.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reference data: %w", err)
		}
		byName := make(map[string]uuid.UUID, len(courses))
		for _, c := range courses {
			byName[strings.ToLower(c.Name)] = c.ID
		}
		refs.courses[strings.ToLower(org.Name)] = byName
	}

	return refs, nil
}

// splitCourses parses the optional comma-separated course list. An empty
// column is valid and yields nil.
func splitCourses(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// validate produces all field-level errors for one row. seenEmails carries
// batch-dedup state across rows: the first occurrence of an email is fine,
// later ones are flagged.
func (s *userImportService) validate(row ImportRow, in UserImportInput, refs *userReferences, seenEmails map[string]bool) []ValidationError {
	var errs []ValidationError
	fail := func(field, message, raw string) {
		errs = append(errs, ValidationError{RowNumber: row.RowNumber, Field: field, Message: message, RawValue: raw})
	}

	email := row.Get("email")
	switch {
	case email == "":
		fail("email", "email is required", "")
	case !emailPattern.MatchString(email):
		fail("email", "email is not a valid address", email)
	case seenEmails[strings.ToLower(email)]:
		fail("email", "duplicate email within this file", email)
	default:
		seenEmails[strings.ToLower(email)] = true
	}

	if row.Get("name") == "" {
		fail("name", "name is required", "")
	}

	role := row.Get("role")
	if role == "" {
		fail("role", "role is required", "")
	} else if !models.IsImportableRole(role) {
		fail("role", "role must be one of: "+models.AllowedList(models.ImportableRoles), role)
	}

	orgName := row.Get("organisation")
	_, orgExists := refs.orgs.lookup(orgName)
	switch {
	case orgName == "":
		fail("organisation", "organisation is required", "")
	case in.OrgID != nil && !orgExists:
		fail("organisation", "organisation does not match your organisation", orgName)
	case in.OrgID == nil && !orgExists && !in.AllowOrgCreate:
		fail("organisation", "organisation does not exist", orgName)
	}

	for _, courseName := range splitCourses(row.Get("courses")) {
		byName, ok := refs.courses[strings.ToLower(orgName)]
		if !ok {
			fail("courses", fmt.Sprintf("course %q not found: organisation has no published courses", courseName), courseName)
			continue
		}
		if _, ok := byName[strings.ToLower(courseName)]; !ok {
			fail("courses", fmt.Sprintf("course %q is not a published course in this organisation", courseName), courseName)
		}
	}

	return errs
}

func (s *userImportService) buildPreview(rows []ImportRow, in UserImportInput, refs *userReferences) *ImportPreview {
	preview := &ImportPreview{
		TotalRows:  len(rows),
		Summary:    newSummary(),
		SampleRows: sampleOf(rows, s.cfg.SampleRows),
	}

	seenEmails := make(map[string]bool, len(rows))
	for _, row := range rows {
		errs := s.validate(row, in, refs, seenEmails)
		preview.Errors = append(preview.Errors, errs...)
		if len(errs) > 0 {
			continue
		}

		refs.orgs.classify(row.Get("organisation"))
		preview.Summary.addDistribution("role", row.Get("role"))
		preview.ValidRows++
	}

	preview.Summary.EntitiesFound["organisation"] = refs.orgs.found
	preview.Summary.EntitiesToCreate["organisation"] = refs.orgs.toCreate
	preview.Summary.TargetRecordCount = preview.ValidRows
	preview.Summary.buildLines("invitation")
	preview.IsValid = len(preview.Errors) == 0

	return preview
}

func (s *userImportService) Preview(ctx context.Context, in UserImportInput) (*ImportPreview, error) {
	rows, err := ParseImportFile(in.FileName, in.Data, s.cfg.MaxBytesFor(models.ImportKindUsers), userHeaders)
	if err != nil {
		return nil, err
	}

	refs, err := s.loadReferences(ctx, in)
	if err != nil {
		return nil, err
	}

	preview := s.buildPreview(rows, in, refs)
	s.metrics.RowsValidated.WithLabelValues(models.ImportKindUsers).Add(float64(preview.ValidRows))
	s.metrics.RowsRejected.WithLabelValues(models.ImportKindUsers).Add(float64(preview.TotalRows - preview.ValidRows))
	return preview, nil
}

// invitationJob is one valid row bound to resolved IDs, ready for the
// provider call.
type invitationJob struct {
	row       ImportRow
	email     string
	name      string
	role      string
	orgID     uuid.UUID
	courseIDs []uuid.UUID
}

// rowOutcome is the settled result of one job's provider calls. critical
// marks failures that must abort the commit (outages, cancellation); plain
// provider rejections stay per-row.
type rowOutcome struct {
	job        invitationJob
	externalID string
	expiresAt  time.Time
	err        error
	critical   bool
}

// Commit re-validates the upload, creates any missing organisations, then
// sends invitations in fan-out batches. Results are collected in slice
// order, never completion order, so counters are deterministic.
func (s *userImportService) Commit(ctx context.Context, in UserImportInput) (*ImportResult, error) {
	log := &models.ImportLog{
		Kind:            models.ImportKindUsers,
		OrgID:           in.OrgID,
		FileName:        in.FileName,
		ImportedBy:      in.ImportedBy,
		StartedAt:       time.Now(),
		EntitiesCreated: models.CountMap{},
	}

	rows, err := ParseImportFile(in.FileName, in.Data, s.cfg.MaxBytesFor(models.ImportKindUsers), userHeaders)
	if err != nil {
		log.ErrorSummary = err.Error()
		s.audit.record(ctx, log, in.Data)
		return nil, err
	}
	log.TotalRows = len(rows)

	refs, err := s.loadReferences(ctx, in)
	if err != nil {
		log.ErrorSummary = err.Error()
		s.audit.record(ctx, log, in.Data)
		return nil, err
	}

	preview := s.buildPreview(rows, in, refs)
	if !preview.IsValid {
		log.FailureCount = preview.TotalRows - preview.ValidRows
		log.ErrorSummary = summarizeErrors(preview.Errors)
		s.audit.record(ctx, log, in.Data)
		s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindUsers, "invalid").Inc()
		return nil, fmt.Errorf("%w: %d rows failed validation", apperrors.ErrImportInvalid, log.FailureCount)
	}

	sg := newSaga(s.logger)
	created := models.CountMap{}

	result, commitErr := s.commitValidRows(ctx, rows, in, refs, sg, created)

	log.EntitiesCreated = created
	if commitErr != nil {
		s.metrics.CompensationsRun.Inc()
		sg.compensate(ctx)
		log.SuccessCount = 0
		log.FailureCount = log.TotalRows
		log.EntitiesCreated = models.CountMap{}
		log.ErrorSummary = commitErr.Error()
		s.audit.record(ctx, log, in.Data)
		s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindUsers, "failed").Inc()
		return nil, commitErr
	}

	log.SuccessCount = result.SuccessCount
	log.FailureCount = result.FailureCount
	log.ErrorSummary = summarizeFailedInvitations(result.FailedInvitations)
	s.audit.record(ctx, log, in.Data)
	s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindUsers, "success").Inc()

	result.ImportLogID = log.ID
	result.TotalRows = log.TotalRows
	result.EntitiesCreated = created
	return result, nil
}

// commitValidRows creates missing organisations, binds rows to IDs, and
// runs the invitation batches. Everything it applies is registered on the
// saga before the next step runs.
func (s *userImportService) commitValidRows(ctx context.Context, rows []ImportRow, in UserImportInput, refs *userReferences, sg *saga, created models.CountMap) (*ImportResult, error) {
	jobs := make([]invitationJob, 0, len(rows))

	for _, row := range rows {
		orgName := row.Get("organisation")

		orgID, ok := refs.orgs.lookup(orgName)
		if !ok {
			// Only reachable in the platform-admin variant; validation
			// rejected unknown organisations everywhere else.
			org := &models.Organisation{Name: orgName, Slug: slugify(orgName)}
			if err := s.orgRepo.Create(ctx, org); err != nil {
				return nil, fmt.Errorf("failed to create organisation %q: %w", orgName, err)
			}
			refs.orgs.add(orgName, org.ID)
			orgID = org.ID
			created["organisation"]++
			id := org.ID
			sg.register("delete organisation "+orgName, func(ctx context.Context) error {
				return s.orgRepo.Delete(ctx, id)
			})
		}

		var courseIDs []uuid.UUID
		for _, courseName := range splitCourses(row.Get("courses")) {
			if id, ok := refs.courses[strings.ToLower(orgName)][strings.ToLower(courseName)]; ok {
				courseIDs = append(courseIDs, id)
			}
		}

		jobs = append(jobs, invitationJob{
			row:       row,
			email:     row.Get("email"),
			name:      row.Get("name"),
			role:      row.Get("role"),
			orgID:     orgID,
			courseIDs: courseIDs,
		})
	}

	result := &ImportResult{}

	batchSize := s.cfg.InvitationBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for start := 0; start < len(jobs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		batch := jobs[start:end]

		// Repository calls run on the request's single tenant-scoped
		// connection, which is not safe for concurrent use. Stale local
		// records are cleared here, sequentially, before the fan-out; only
		// provider I/O runs inside the goroutines.
		for _, job := range batch {
			if err := s.invitationRepo.DeleteByEmailOrg(ctx, job.orgID, job.email); err != nil {
				return nil, fmt.Errorf("failed to invite %s: %w", job.email, err)
			}
		}

		outcomes := make([]rowOutcome, len(batch))
		var wg sync.WaitGroup
		for i, job := range batch {
			wg.Add(1)
			go func(i int, job invitationJob) {
				defer wg.Done()
				outcomes[i] = s.inviteOne(ctx, job)
			}(i, job)
		}
		wg.Wait()

		// Collect in slice order. Successful rows join the saga first, so a
		// critical outcome later in the batch still rolls them back. The
		// local mirror row is written here, back on the single connection.
		var criticalErr error
		for _, outcome := range outcomes {
			if outcome.externalID != "" {
				externalID := outcome.externalID
				sg.register("revoke invitation "+outcome.job.email, func(ctx context.Context) error {
					return s.provider.RevokeInvitation(ctx, externalID)
				})
			}

			switch {
			case outcome.err == nil:
				if criticalErr != nil {
					// The commit is already doomed; the revoke registered
					// above cleans up the provider record.
					continue
				}
				local := &models.Invitation{
					OrgID:      outcome.job.orgID,
					Email:      outcome.job.email,
					Name:       outcome.job.name,
					Role:       outcome.job.role,
					CourseIDs:  outcome.job.courseIDs,
					ExternalID: outcome.externalID,
					Status:     models.InvitationPending,
					ExpiresAt:  outcome.expiresAt,
				}
				if err := s.invitationRepo.Create(ctx, local); err != nil {
					// Provider record exists without a local mirror; its
					// revoke is already on the saga.
					criticalErr = fmt.Errorf("failed to invite %s: %w", outcome.job.email, err)
					continue
				}
				localID := local.ID
				sg.register("delete local invitation "+outcome.job.email, func(ctx context.Context) error {
					return s.invitationRepo.Delete(ctx, localID)
				})
				result.SuccessCount++
				created["invitation"]++
				s.metrics.InvitationsSent.Inc()
			case outcome.critical:
				if criticalErr == nil {
					criticalErr = fmt.Errorf("failed to invite %s: %w", outcome.job.email, outcome.err)
				}
			default:
				result.FailureCount++
				result.FailedInvitations = append(result.FailedInvitations, FailedInvitation{
					RowNumber: outcome.job.row.RowNumber,
					Email:     outcome.job.email,
					Reason:    outcome.err.Error(),
				})
				s.metrics.InvitationsFailed.Inc()
			}
		}

		if criticalErr != nil {
			return nil, criticalErr
		}
	}

	return result, nil
}

// inviteOne handles the provider side of one row: revoke any pending
// provider invitation for the email, then create the new one. It never
// touches the database; local mirroring happens in the collector. Provider
// rejections are per-row failures; anything else is critical.
func (s *userImportService) inviteOne(ctx context.Context, job invitationJob) rowOutcome {
	outcome := rowOutcome{job: job}

	pending, err := s.provider.ListPendingInvitations(ctx, job.email)
	if err != nil {
		return s.classify(outcome, err)
	}
	for _, inv := range pending {
		if err := s.provider.RevokeInvitation(ctx, inv.ID); err != nil {
			return s.classify(outcome, fmt.Errorf("failed to revoke stale invitation: %w", err))
		}
	}

	expiresAt := time.Now().Add(s.invitationTTL)
	providerInv, err := s.provider.CreateInvitation(ctx, &identity.CreateInvitationRequest{
		Email: job.email,
		Metadata: map[string]string{
			"name":       job.name,
			"role":       job.role,
			"org_id":     job.orgID.String(),
			"course_ids": joinUUIDs(job.courseIDs),
		},
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return s.classify(outcome, err)
	}
	outcome.externalID = providerInv.ID
	outcome.expiresAt = expiresAt

	return outcome
}

// classify splits provider failures: a ProviderError is a per-row rejection,
// everything else (transport failure, cancellation) aborts the commit.
func (s *userImportService) classify(outcome rowOutcome, err error) rowOutcome {
	outcome.err = err
	var provErr *identity.ProviderError
	if !errors.As(err, &provErr) {
		outcome.critical = true
	}
	return outcome
}

func joinUUIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func summarizeFailedInvitations(failed []FailedInvitation) string {
	if len(failed) == 0 {
		return ""
	}
	parts := make([]string, 0, len(failed))
	for _, f := range failed {
		parts = append(parts, fmt.Sprintf("row %d (%s): %s", f.RowNumber, f.Email, f.Reason))
	}
	return strings.Join(parts, "; ")
}
