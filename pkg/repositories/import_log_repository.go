package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mentora-hq/portal-engine/pkg/database"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

// ImportLogRepository defines append-only access to the import audit trail.
type ImportLogRepository interface {
	Create(ctx context.Context, log *models.ImportLog) error
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.ImportLog, error)
	ListPlatform(ctx context.Context) ([]*models.ImportLog, error)
}

type importLogRepository struct{}

// NewImportLogRepository creates a new import log repository.
func NewImportLogRepository() ImportLogRepository {
	return &importLogRepository{}
}

const importLogColumns = `id, org_id, kind, file_name, total_rows, success_count, failure_count, entities_created, imported_by, started_at, completed_at, error_summary`

func (r *importLogRepository) Create(ctx context.Context, log *models.ImportLog) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	query := `
		INSERT INTO import_logs (` + importLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := scope.Conn.Exec(ctx, query,
		log.ID, log.OrgID, log.Kind, log.FileName, log.TotalRows,
		log.SuccessCount, log.FailureCount, log.EntitiesCreated,
		log.ImportedBy, log.StartedAt, log.CompletedAt, log.ErrorSummary)
	if err != nil {
		return fmt.Errorf("failed to create import log: %w", err)
	}

	return nil
}

func (r *importLogRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.ImportLog, error) {
	return r.list(ctx, `WHERE org_id = $1`, orgID)
}

// ListPlatform returns logs for platform-level imports (workflow and
// book-workflow commits, which carry no org).
func (r *importLogRepository) ListPlatform(ctx context.Context) ([]*models.ImportLog, error) {
	return r.list(ctx, `WHERE org_id IS NULL`)
}

func (r *importLogRepository) list(ctx context.Context, where string, args ...any) ([]*models.ImportLog, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + importLogColumns + `
		FROM import_logs ` + where + `
		ORDER BY started_at DESC`

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ImportLog
	for rows.Next() {
		var log models.ImportLog
		if err := rows.Scan(
			&log.ID, &log.OrgID, &log.Kind, &log.FileName, &log.TotalRows,
			&log.SuccessCount, &log.FailureCount, &log.EntitiesCreated,
			&log.ImportedBy, &log.StartedAt, &log.CompletedAt, &log.ErrorSummary); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}
