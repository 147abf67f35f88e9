package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/blob"
	"github.com/mentora-hq/portal-engine/pkg/config"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

// Book-workflow CSV columns. "workflow" is the book-workflow name; the
// department must belong to the fixed set, and the two enum columns each
// have a closed value list.
var bookWorkflowHeaders = []string{"department", "category", "book", "author", "workflow", "activity_type", "problem_goal"}

// BookWorkflowImportService runs the preview-then-commit pipeline for the
// book-workflow CSV. Platform-level content, admin scope.
type BookWorkflowImportService interface {
	Preview(ctx context.Context, fileName string, data []byte) (*ImportPreview, error)
	Commit(ctx context.Context, fileName string, data []byte, importedBy string) (*ImportResult, error)
}

type bookWorkflowImportService struct {
	taxonomyRepo repositories.TaxonomyRepository
	workflowRepo repositories.WorkflowRepository
	audit        *importAudit
	metrics      *metrics.Metrics
	cfg          *config.ImportsConfig
	logger       *zap.Logger
}

// NewBookWorkflowImportService creates a book-workflow import service.
func NewBookWorkflowImportService(
	taxonomyRepo repositories.TaxonomyRepository,
	workflowRepo repositories.WorkflowRepository,
	importLogRepo repositories.ImportLogRepository,
	archive *blob.ArchiveStore,
	m *metrics.Metrics,
	cfg *config.ImportsConfig,
	logger *zap.Logger,
) BookWorkflowImportService {
	logger = logger.Named("book_workflow_import")
	return &bookWorkflowImportService{
		taxonomyRepo: taxonomyRepo,
		workflowRepo: workflowRepo,
		audit:        &importAudit{logRepo: importLogRepo, archive: archive, metrics: m, logger: logger},
		metrics:      m,
		cfg:          cfg,
		logger:       logger,
	}
}

var _ BookWorkflowImportService = (*bookWorkflowImportService)(nil)

type bookWorkflowReferences struct {
	bookCategories *referenceSet // scoped under canonical department name
	books          *referenceSet // scoped under department + book-category
}

// bookScope qualifies a book-category name with its department. Category
// names are only unique per department, so books keyed by category name
// alone would collide across departments.
func bookScope(department, category string) string {
	return department + "\x00" + category
}

func (s *bookWorkflowImportService) loadReferences(ctx context.Context) (*bookWorkflowReferences, error) {
	bookCategories, err := s.taxonomyRepo.ListBookCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference data: %w", err)
	}
	books, err := s.taxonomyRepo.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference data: %w", err)
	}

	categoryScopes := make(map[string]string, len(bookCategories)) // id -> department-qualified scope
	catSet := newReferenceSet(nil)
	for _, c := range bookCategories {
		catSet.addChild(c.Department, c.Name, c.ID)
		categoryScopes[c.ID.String()] = bookScope(c.Department, c.Name)
	}

	bookSet := newReferenceSet(nil)
	for _, b := range books {
		bookSet.addChild(categoryScopes[b.CategoryID.String()], b.Name, b.ID)
	}

	return &bookWorkflowReferences{bookCategories: catSet, books: bookSet}, nil
}

func (s *bookWorkflowImportService) validate(row ImportRow) []ValidationError {
	var errs []ValidationError

	for _, field := range []string{"department", "category", "book", "workflow", "activity_type", "problem_goal"} {
		if row.Get(field) == "" {
			errs = append(errs, ValidationError{
				RowNumber: row.RowNumber,
				Field:     field,
				Message:   fmt.Sprintf("%s is required", field),
			})
		}
	}

	if dept := row.Get("department"); dept != "" && !models.IsBookDepartment(dept) {
		errs = append(errs, ValidationError{
			RowNumber: row.RowNumber,
			Field:     "department",
			Message:   "department must be one of: " + models.AllowedList(models.BookDepartments),
			RawValue:  dept,
		})
	}

	if at := row.Get("activity_type"); at != "" && !models.IsValidActivityType(at) {
		errs = append(errs, ValidationError{
			RowNumber: row.RowNumber,
			Field:     "activity_type",
			Message:   "activity_type must be one of: " + models.AllowedList(models.ActivityTypes),
			RawValue:  at,
		})
	}

	if pg := row.Get("problem_goal"); pg != "" && !models.IsValidProblemGoal(pg) {
		errs = append(errs, ValidationError{
			RowNumber: row.RowNumber,
			Field:     "problem_goal",
			Message:   "problem_goal must be one of: " + models.AllowedList(models.ProblemGoals),
			RawValue:  pg,
		})
	}

	return errs
}

func (s *bookWorkflowImportService) buildPreview(rows []ImportRow, refs *bookWorkflowReferences) *ImportPreview {
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

		department := models.CanonicalBookDepartment(row.Get("department"))
		category := row.Get("category")
		book := row.Get("book")
		refs.bookCategories.classifyChild(department, category)
		refs.books.classifyChild(bookScope(department, category), book)
		preview.Summary.addDistribution("department", department)
		preview.Summary.addDistribution("activity_type", row.Get("activity_type"))
		preview.Summary.addDistribution("problem_goal", row.Get("problem_goal"))
		preview.ValidRows++
	}

	preview.Summary.EntitiesFound["book category"] = refs.bookCategories.found
	preview.Summary.EntitiesToCreate["book category"] = refs.bookCategories.toCreate
	preview.Summary.EntitiesFound["book"] = refs.books.found
	preview.Summary.EntitiesToCreate["book"] = refs.books.toCreate
	preview.Summary.TargetRecordCount = preview.ValidRows
	preview.Summary.buildLines("book workflow")
	preview.IsValid = len(preview.Errors) == 0

	return preview
}

func (s *bookWorkflowImportService) Preview(ctx context.Context, fileName string, data []byte) (*ImportPreview, error) {
	rows, err := ParseImportFile(fileName, data, s.cfg.MaxBytesFor(models.ImportKindBookWorkflows), bookWorkflowHeaders)
	if err != nil {
		return nil, err
	}

	refs, err := s.loadReferences(ctx)
	if err != nil {
		return nil, err
	}

	preview := s.buildPreview(rows, refs)
	s.metrics.RowsValidated.WithLabelValues(models.ImportKindBookWorkflows).Add(float64(preview.ValidRows))
	s.metrics.RowsRejected.WithLabelValues(models.ImportKindBookWorkflows).Add(float64(preview.TotalRows - preview.ValidRows))
	return preview, nil
}

// Commit re-validates, then creates missing book categories and books before
// the book workflows that reference them. All inserts are compensated on a
// critical failure.
func (s *bookWorkflowImportService) Commit(ctx context.Context, fileName string, data []byte, importedBy string) (*ImportResult, error) {
	log := &models.ImportLog{
		Kind:            models.ImportKindBookWorkflows,
		FileName:        fileName,
		ImportedBy:      importedBy,
		StartedAt:       time.Now(),
		EntitiesCreated: models.CountMap{},
	}

	rows, err := ParseImportFile(fileName, data, s.cfg.MaxBytesFor(models.ImportKindBookWorkflows), bookWorkflowHeaders)
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
		s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindBookWorkflows, "invalid").Inc()
		return nil, fmt.Errorf("%w: %d rows failed validation", apperrors.ErrImportInvalid, log.FailureCount)
	}

	sg := newSaga(s.logger)
	created := models.CountMap{}

	commitErr := s.commitRows(ctx, rows, refs, sg, created)

	log.EntitiesCreated = created
	log.SuccessCount = created["book workflow"]
	if commitErr != nil {
		s.metrics.CompensationsRun.Inc()
		sg.compensate(ctx)
		log.SuccessCount = 0
		log.FailureCount = log.TotalRows
		log.EntitiesCreated = models.CountMap{}
		log.ErrorSummary = commitErr.Error()
		s.audit.record(ctx, log, data)
		s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindBookWorkflows, "failed").Inc()
		return nil, commitErr
	}

	s.audit.record(ctx, log, data)
	s.metrics.ImportsCommitted.WithLabelValues(models.ImportKindBookWorkflows, "success").Inc()

	return &ImportResult{
		ImportLogID:     log.ID,
		TotalRows:       log.TotalRows,
		SuccessCount:    log.SuccessCount,
		EntitiesCreated: created,
	}, nil
}

func (s *bookWorkflowImportService) commitRows(ctx context.Context, rows []ImportRow, refs *bookWorkflowReferences, sg *saga, created models.CountMap) error {
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		department := models.CanonicalBookDepartment(row.Get("department"))
		categoryName := row.Get("category")
		bookName := row.Get("book")

		categoryID, ok := refs.bookCategories.lookupChild(department, categoryName)
		if !ok {
			category := &models.BookCategory{Department: department, Name: categoryName}
			if err := s.taxonomyRepo.CreateBookCategory(ctx, category); err != nil {
				return fmt.Errorf("failed to create book category %q: %w", categoryName, err)
			}
			refs.bookCategories.addChild(department, categoryName, category.ID)
			categoryID = category.ID
			created["book category"]++
			id := category.ID
			sg.register("delete book category "+categoryName, func(ctx context.Context) error {
				return s.taxonomyRepo.DeleteBookCategory(ctx, id)
			})
		}

		bookID, ok := refs.books.lookupChild(bookScope(department, categoryName), bookName)
		if !ok {
			book := &models.Book{CategoryID: categoryID, Name: bookName, Author: row.Get("author")}
			if err := s.taxonomyRepo.CreateBook(ctx, book); err != nil {
				return fmt.Errorf("failed to create book %q: %w", bookName, err)
			}
			refs.books.addChild(bookScope(department, categoryName), bookName, book.ID)
			bookID = book.ID
			created["book"]++
			id := book.ID
			sg.register("delete book "+bookName, func(ctx context.Context) error {
				return s.taxonomyRepo.DeleteBook(ctx, id)
			})
		}

		workflow := &models.BookWorkflow{
			BookID:       bookID,
			Name:         row.Get("workflow"),
			ActivityType: row.Get("activity_type"),
			ProblemGoal:  row.Get("problem_goal"),
		}
		if err := s.workflowRepo.CreateBookWorkflow(ctx, workflow); err != nil {
			return fmt.Errorf("failed to create book workflow %q: %w", workflow.Name, err)
		}
		created["book workflow"]++
		id := workflow.ID
		sg.register("delete book workflow "+workflow.Name, func(ctx context.Context) error {
			return s.workflowRepo.DeleteBookWorkflow(ctx, id)
		})
	}

	return nil
}
