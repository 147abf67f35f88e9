package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mentora-hq/portal-engine/pkg/database"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

// WorkflowRepository defines data access for imported workflows and
// book workflows. Delete methods exist solely for saga compensation.
type WorkflowRepository interface {
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error

	CreateBookWorkflow(ctx context.Context, workflow *models.BookWorkflow) error
	DeleteBookWorkflow(ctx context.Context, id uuid.UUID) error
}

type workflowRepository struct{}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository() WorkflowRepository {
	return &workflowRepository{}
}

func (r *workflowRepository) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if workflow.ID == uuid.Nil {
		workflow.ID = uuid.New()
	}
	workflow.CreatedAt = time.Now()

	query := `
		INSERT INTO workflows (id, category_id, department_id, name, description, course_name, author, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := scope.Conn.Exec(ctx, query,
		workflow.ID, workflow.CategoryID, workflow.DepartmentID, workflow.Name,
		workflow.Description, workflow.CourseName, workflow.Author, workflow.Link,
		workflow.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

func (r *workflowRepository) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func (r *workflowRepository) CreateBookWorkflow(ctx context.Context, workflow *models.BookWorkflow) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if workflow.ID == uuid.Nil {
		workflow.ID = uuid.New()
	}
	workflow.CreatedAt = time.Now()

	query := `
		INSERT INTO book_workflows (id, book_id, name, activity_type, problem_goal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := scope.Conn.Exec(ctx, query,
		workflow.ID, workflow.BookID, workflow.Name, workflow.ActivityType,
		workflow.ProblemGoal, workflow.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create book workflow: %w", err)
	}

	return nil
}

func (r *workflowRepository) DeleteBookWorkflow(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `DELETE FROM book_workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book workflow: %w", err)
	}

	return nil
}
