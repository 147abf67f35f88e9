package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/blob"
	"github.com/mentora-hq/portal-engine/pkg/config"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

// Workflow CSV columns. "ai mba" is the top-level category, "category" the
// department under it, "topic" the workflow name.
var workflowHeaders = []string{"ai mba", "category", "topic", "workflow", "course", "author", "link"}

// WorkflowImportService runs the preview-then-commit pipeline for the
// workflow CSV. Workflows are platform-level content, so callers run under
// the admin scope.
type WorkflowImportService interface {
	Preview(ctx context.Context, fileName string, data []byte) (*ImportPreview, error)
	Commit(ctx context.Context, fileName string, data []byte, importedBy string) (*ImportResult, error)
}

type workflowImportService struct {
	taxonomyRepo repositories.TaxonomyRepository
	workflowRepo repositories.WorkflowRepository
	audit        *importAudit
	metrics      *metrics.Metrics
	cfg          *config.ImportsConfig
	logger       *zap.Logger
}

// NewWorkflowImportService creates a workflow import service.
func NewWorkflowImportService(
	taxonomyRepo repositories.TaxonomyRepository,
	workflowRepo repositories.WorkflowRepository,
	importLogRepo repositories.ImportLogRepository,
	archive *blob.ArchiveStore,
	m *metrics.Metrics,
	cfg *config.ImportsConfig,
	logger *zap.Logger,
) WorkflowImportService {
	logger = logger.Named("workflow_import")
	return &workflowImportService{
		taxonomyRepo: taxonomyRepo,
		workflowRepo: workflowRepo,
		audit:        &importAudit{logRepo: importLogRepo, archive: archive, metrics: m, logger: logger},
		metrics:      m,
		cfg:          cfg,
		logger:       logger,
	}
}

var _ WorkflowImportService = (*workflowImportService)(nil)

// workflowReferences holds the resolver state for one preview or commit.
type workflowReferences struct {
	categories  *referenceSet
	departments *referenceSet
}

func (s *workflowImportService) loadReferences(ctx context.Context) (*workflowReferences, error) {
	categories, err := s.taxonomyRepo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference data: %w", err)
	}
	departments, err := s.taxonomyRepo.ListDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference data: %w", err)
	}

	categoryNames := make(map[string]string, len(categories)) // id -> name
	catSet := newReferenceSet(nil)
	for _, c := range categories {
		catSet.add(c.Name, c.ID)
		categoryNames[c.ID.String()] = c.Name
	}

	deptSet := newReferenceSet(nil)
	for _, d := range departments {
		deptSet.addChild(categoryNames[d.CategoryID.String()], d.Name, d.ID)
	}

	return &workflowReferences{categories: catSet, departments: deptSet}, nil
}

// validate produces all field-level errors for one row. Errors are data;
// the row is simply excluded from the valid set.
func (s *workflowImportService) validate(row ImportRow) []ValidationError {
	var errs []ValidationError

	for _, field := range []string{"ai mba", "category", "topic"} {
		if row.Get(field) == "" {
			errs = append(errs, ValidationError{
				RowNumber: row.RowNumber,
				Field:     field,
				Message:   fmt.Sprintf("%s is required", field),
			})
		}
	}

	if link := row.Get("link"); link != "" {
		if u, err := url.Parse(link); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{
				RowNumber: row.RowNumber,
				Field:     "link",
				Message:   "link must be an absolute http(s) URL",
				RawValue:  link,
			})
		}
	}

	return errs
}

func (s *workflowImportService) buildPreview(rows []ImportRow, refs *workflowReferences) *ImportPreview {
	preview := &ImportPreview{
		TotalRows:  len(rows),
		Summary:    newSummary(),
		SampleRows: sampleOf(rows, s.cfg.SampleRows),
	}

	for _, row := range rows {
		errs := s.validate(row)
		preview.Errors = append(preview.Errors, errs...)
		if len(errs) > 0 {
			continue
		}

		category := row.Get("ai mba")
		department := row.Get("category")
		refs.categories.classify(category)
		refs.departments.classifyChild(category, department)
		preview.Summary.addDistribution("category", category)
		preview.ValidRows++
	}

	preview.Summary.EntitiesFound["category"] = refs.categories.found
	preview.Summary.EntitiesToCreate["category"] = refs.categories.toCreate
	preview.Summary.EntitiesFound["department"] = refs.departments.found
	preview.Summary.EntitiesToCreate["department"] = refs.departments.toCreate
	preview.Summary.TargetRecordCount = preview.ValidRows
	preview.Summary.buildLines("workflow")
	preview.IsValid = len(preview.Errors) == 0

	return preview
}

func (s *workflowImportService) Preview(ctx context.Context, fileName string, data []byte) (*ImportPreview, error) {
	rows, err := ParseImportFile(fileName, data, s.cfg.MaxBytesFor(models.ImportKindWorkflows), workflowHeaders)
	if err != nil {
		return nil, err
	}

	refs, err := s.loadReferences(ctx)
	if err != nil {
		return nil, err
	}

	preview := s.buildPreview(rows, refs)
	s.metrics.RowsValidated.WithLabelValues(models.ImportKindWorkflows).Add(float64(preview.ValidRows))
	s.metrics.RowsRejected.WithLabelValues(models.ImportKindWorkflows).Add(float64(preview.TotalRows - preview.ValidRows))
	return preview, nil
}

// Commit re-validates the upload (previews are never persisted, so the
// commit cannot trust a stale one), creates missing categories and
// departments, then the workflows themselves. Every insert registers a
// compensating delete; any failure rolls the whole commit back best-effort.
func (s *workflowImportService) Commit(ctx context.Context, fileName string, data []byte, importedBy string) (*ImportResult, error) {
	started := time.Now()
	log := &models.ImportLog{
		Kind:            models.ImportKindWorkflows,
		FileName:        fileName,
		ImportedBy:      importedBy,
		StartedAt:       started,
		EntitiesCreated: models.CountMap{},
	}

	rows, err := ParseImportFile(fileName, data, s.cfg.MaxBytesFor(models.ImportKindWorkflows), workflowHeaders)
	if err != nil {
		log.ErrorSummary = err.Error()
		s.audit.record(ctx, log, data)
		return nil, err
	}
	log.TotalRows = len(rows)

	refs, err := s.loadReferences(ctx)
	if err != nil {
		log.ErrorSummary = err.Error()
		s.audit.record(ctx, log, data)
		return nil, err
	}

	preview := s.buildPreview(rows, refs)
	if !preview.IsValid {
		log.FailureCount = preview.TotalRows - preview.ValidRows
		log.ErrorSummary = summarizeErrors(preview.Errors)
		s.audit.record(ctx, log, data)
		s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindWorkflows, "invalid").Inc()
		return nil, fmt.Errorf("%w: %d rows failed validation", apperrors.ErrImportInvalid, log.FailureCount)
	}

	sg := newSaga(s.logger)
	created := models.CountMap{}

	commitErr := s.commitRows(ctx, rows, refs, sg, created)

	log.EntitiesCreated = created
	log.SuccessCount = created["workflow"]
	if commitErr != nil {
		s.metrics.CompensationsRun.Inc()
		sg.compensate(ctx)
		log.SuccessCount = 0
		log.FailureCount = log.TotalRows
		log.EntitiesCreated = models.CountMap{}
		log.ErrorSummary = commitErr.Error()
		s.audit.record(ctx, log, data)
		s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindWorkflows, "failed").Inc()
		return nil, commitErr
	}

	s.audit.record(ctx, log, data)
	s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindWorkflows, "success").Inc()

	return &ImportResult{
		ImportLogID:     log.ID,
		TotalRows:       log.TotalRows,
		SuccessCount:    log.SuccessCount,
		EntitiesCreated: created,
	}, nil
}

// commitRows walks rows in input order, creating parents before children so
// no workflow is ever inserted with a dangling reference.
func (s *workflowImportService) commitRows(ctx context.Context, rows []ImportRow, refs *workflowReferences, sg *saga, created models.CountMap) error {
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		categoryName := row.Get("ai mba")
		departmentName := row.Get("category")

		categoryID, ok := refs.categories.lookup(categoryName)
		if !ok {
			category := &models.Category{Name: categoryName}
			if err := s.taxonomyRepo.CreateCategory(ctx, category); err != nil {
				return fmt.Errorf("failed to create category %q: %w", categoryName, err)
			}
			refs.categories.add(categoryName, category.ID)
			categoryID = category.ID
			created["category"]++
			id := category.ID
			sg.register("delete category "+categoryName, func(ctx context.Context) error {
				return s.taxonomyRepo.DeleteCategory(ctx, id)
			})
		}

		departmentID, ok := refs.departments.lookupChild(categoryName, departmentName)
		if !ok {
			department := &models.Department{CategoryID: categoryID, Name: departmentName}
			if err := s.taxonomyRepo.CreateDepartment(ctx, department); err != nil {
				return fmt.Errorf("failed to create department %q: %w", departmentName, err)
			}
			refs.departments.addChild(categoryName, departmentName, department.ID)
			departmentID = department.ID
			created["department"]++
			id := department.ID
			sg.register("delete department "+departmentName, func(ctx context.Context) error {
				return s.taxonomyRepo.DeleteDepartment(ctx, id)
			})
		}

		workflow := &models.Workflow{
			CategoryID:   categoryID,
			DepartmentID: departmentID,
			Name:         row.Get("topic"),
			Description:  row.Get("workflow"),
			CourseName:   row.Get("course"),
			Author:       row.Get("author"),
			Link:         row.Get("link"),
		}
		if err := s.workflowRepo.CreateWorkflow(ctx, workflow); err != nil {
			return fmt.Errorf("failed to create workflow %q: %w", workflow.Name, err)
		}
		created["workflow"]++
		id := workflow.ID
		sg.register("delete workflow "+workflow.Name, func(ctx context.Context) error {
			return s.workflowRepo.DeleteWorkflow(ctx, id)
		})
	}

	return nil
}

// IsImportInvalid reports whether err is a validation abort (as opposed to a
// storage or provider failure).
func IsImportInvalid(err error) bool {
	return errors.Is(err, apperrors.ErrImportInvalid) ||
		errors.Is(err, apperrors.ErrFileTooLarge) ||
		errors.Is(err, apperrors.ErrUnsupportedFile)
}
