package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/blob"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
)

// importAudit finalises one commit attempt: writes the append-only import
// log (even on total failure) and archives the raw upload, best effort.
type importAudit struct {
	logRepo repositories.ImportLogRepository
	archive *blob.ArchiveStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// auditTimeout bounds the log write and archive upload once the caller's
// cancellation has been dropped.
const auditTimeout = 15 * time.Second

// record persists the log and archives the file. Neither failure mode can
// fail the import itself at this point; both are logged. The log row is
// written even when the commit failed because the request context was
// cancelled, so the caller's cancellation is dropped; context values (the
// tenant scope in particular) are kept.
func (a *importAudit) record(ctx context.Context, log *models.ImportLog, data []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	log.CompletedAt = time.Now()

	if err := a.logRepo.Create(ctx, log); err != nil {
		a.logger.Error("Failed to write import log",
			zap.String("kind", log.Kind),
			zap.String("file", log.FileName),
			zap.Error(err))
		return
	}

	if err := a.archive.Put(ctx, log.ID.String(), log.FileName, data); err != nil {
		a.metrics.ArchiveUploadFails.Inc()
		a.logger.Warn("Failed to archive import file",
			zap.String("import_log_id", log.ID.String()),
			zap.Error(err))
	}
}

// summarizeErrors flattens validation errors into one log-friendly line,
// capped so a thousand-row failure does not bloat the audit table.
func summarizeErrors(errs []ValidationError) string {
	const maxListed = 10

	parts := make([]string, 0, maxListed)
	for i, e := range errs {
		if i == maxListed {
			parts = append(parts, fmt.Sprintf("and %d more", len(errs)-maxListed))
			break
		}
		if e.Field != "" {
			parts = append(parts, fmt.Sprintf("row %d [%s]: %s", e.RowNumber, e.Field, e.Message))
		} else {
			parts = append(parts, fmt.Sprintf("row %d: %s", e.RowNumber, e.Message))
		}
	}
	return strings.Join(parts, "; ")
}
